// Package shared contains the error taxonomy used by every domain and
// application package. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "quest", "addiction"
	Op      string // Operation that failed, e.g., "Toggle", "Relapse"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// User errors
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrInvalidTelegramID = NewDomainError("user", "Validate", ErrInvalidID, "invalid Telegram ID")
)

// Progression errors
var (
	ErrUnknownPillar = NewDomainError("progression", "Resolve", ErrInvalidInput, "unknown pillar")
)

// Activity errors
var (
	ErrActivityNotFound = NewDomainError("activity", "Find", ErrNotFound, "activity not found")
	ErrInvalidEvent     = NewDomainError("activity", "Decode", ErrInvalidFormat, "malformed event")
	ErrUnknownEventKind = NewDomainError("activity", "Decode", ErrInvalidInput, "unknown event kind")
)

// Quest errors
var (
	ErrQuestNotFound = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrInvalidQuest  = NewDomainError("quest", "Validate", ErrInvalidInput, "quest needs a title, a pillar and a positive XP value")
)

// Addiction errors
var (
	ErrTrackerNotFound  = NewDomainError("addiction", "Find", ErrNotFound, "tracker not found")
	ErrEmptyTrackerName = NewDomainError("addiction", "Validate", ErrEmptyValue, "tracker name cannot be empty")
	ErrTrackerExists    = NewDomainError("addiction", "Save", ErrAlreadyExists, "tracker with this name already exists")
)

// Roll-up errors
var (
	ErrRollupInProgress = NewDomainError("rollup", "Lock", ErrConcurrentModification, "roll-up already running for this day")
)

// External service errors
var (
	ErrClassifierUnavailable = NewDomainError("classifier", "Classify", ErrServiceUnavailable, "classifier is unavailable")
	ErrClassifierResponse    = NewDomainError("classifier", "Parse", ErrInvalidFormat, "invalid response from classifier")
	ErrTelegramAPIFailed     = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
