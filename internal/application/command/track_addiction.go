package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADDICTION TRACKER
// Counts clean time per named vice, keeps the longest clean interval and
// rewards the decision to start tracking.
// ══════════════════════════════════════════════════════════════════════════════

// AddictionResult contains the result of a tracker operation.
type AddictionResult struct {
	Outcome Outcome

	// Tracker is the tracker after the operation, nil when NotTracked.
	Tracker *ledger.AddictionTracker

	// CleanHours is the interval a relapse ended.
	CleanHours float64

	// NewRecord is set when the relapse ended the longest interval so far.
	NewRecord bool

	// Change is the XP effect; zero when nothing was awarded.
	Change progression.Change

	// Log is the addiction log written, nil when nothing was written.
	Log *ledger.ActivityLog
}

// Message renders the result for the chat reply.
func (r AddictionResult) Message(name string) string {
	switch r.Outcome {
	case OutcomeStarted:
		return fmt.Sprintf("Started tracking %s. Day one begins now.", r.Tracker.Name)
	case OutcomeAlreadyTracked:
		return fmt.Sprintf("Already tracking %s.", r.Tracker.Name)
	case OutcomeNotTracked:
		return fmt.Sprintf("You are not tracking %s yet. Start tracking it first.", strings.TrimSpace(name))
	case OutcomeRelapsed:
		msg := fmt.Sprintf("Relapse logged for %s after %.1f clean hours.", r.Tracker.Name, r.CleanHours)
		if r.NewRecord {
			msg += " That was your best streak so far."
		}
		return msg
	}
	return ""
}

// startTracking runs inside a unit of work. It is shared with the event
// dispatcher so that an addiction_start event behaves exactly like the API.
func startTracking(ctx context.Context, tx ledger.Tx, rules event.Rules, name string, now time.Time) (AddictionResult, error) {
	existing, err := tx.FindTracker(ctx, name)
	if err != nil {
		return AddictionResult{}, err
	}
	if existing != nil {
		return AddictionResult{Outcome: OutcomeAlreadyTracked, Tracker: existing}, nil
	}

	tracker, err := ledger.NewAddictionTracker(tx.UserID(), name, now)
	if err != nil {
		return AddictionResult{}, err
	}
	if err := tx.SaveTracker(ctx, tracker); err != nil {
		return AddictionResult{}, err
	}

	log := ledger.NewActivityLog(tx.UserID(), ledger.LogAddiction, rules.AddictionPillar, rules.AddictionStartXP, tracker.Name, now)
	log.Category = ledger.CategoryAddictionStart
	if err := tx.AppendLog(ctx, log); err != nil {
		return AddictionResult{}, err
	}

	stats, change, err := progression.ApplyDelta(tx.Stats(), rules.AddictionPillar, rules.AddictionStartXP)
	if err != nil {
		return AddictionResult{}, err
	}
	if err := tx.SaveStats(ctx, stats); err != nil {
		return AddictionResult{}, err
	}

	return AddictionResult{Outcome: OutcomeStarted, Tracker: tracker, Change: change, Log: log}, nil
}

// recordRelapse runs inside a unit of work.
func recordRelapse(ctx context.Context, tx ledger.Tx, rules event.Rules, name string, now time.Time) (AddictionResult, error) {
	tracker, err := tx.FindTracker(ctx, name)
	if err != nil {
		return AddictionResult{}, err
	}
	if tracker == nil {
		return AddictionResult{Outcome: OutcomeNotTracked}, nil
	}

	previousRecord := tracker.RecordHours
	clean := tracker.Relapse(now)
	if err := tx.SaveTracker(ctx, tracker); err != nil {
		return AddictionResult{}, err
	}

	penalty := -rules.RelapsePenaltyXP
	log := ledger.NewActivityLog(tx.UserID(), ledger.LogAddiction, rules.AddictionPillar, penalty, tracker.Name, now)
	log.Category = ledger.CategoryAddictionRelapse
	log.Quantity = clean
	if err := tx.AppendLog(ctx, log); err != nil {
		return AddictionResult{}, err
	}

	result := AddictionResult{
		Outcome:    OutcomeRelapsed,
		Tracker:    tracker,
		CleanHours: clean,
		NewRecord:  clean > previousRecord,
		Log:        log,
	}

	if penalty != 0 {
		stats, change, err := progression.ApplyDelta(tx.Stats(), rules.AddictionPillar, penalty)
		if err != nil {
			return AddictionResult{}, err
		}
		if err := tx.SaveStats(ctx, stats); err != nil {
			return AddictionResult{}, err
		}
		result.Change = change
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AddictionHandlerConfig contains configuration for the handler.
type AddictionHandlerConfig struct {
	Rules  event.Rules
	Clock  Clock
	Cache  CacheInvalidator
	Logger *slog.Logger
}

// AddictionHandler starts, relapses and deletes addiction trackers.
type AddictionHandler struct {
	store  ledger.Store
	rules  event.Rules
	clock  Clock
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewAddictionHandler creates a new AddictionHandler.
func NewAddictionHandler(store ledger.Store, config AddictionHandlerConfig) *AddictionHandler {
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &AddictionHandler{
		store:  store,
		rules:  rulesOrDefault(config.Rules),
		clock:  config.Clock,
		cache:  config.Cache,
		logger: config.Logger,
	}
}

// Start begins tracking a vice. Tracking an already tracked name is not an error.
func (h *AddictionHandler) Start(ctx context.Context, userID, name string) (*AddictionResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.ErrEmptyTrackerName
	}

	var result AddictionResult
	err := h.store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		result, err = startTracking(ctx, tx, h.rules, name, h.clock.Now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("addiction start: %w", err)
	}

	if result.Outcome == OutcomeStarted {
		invalidate(ctx, h.cache, h.logger, userID)
		h.logger.Info("addiction tracker started", "user_id", userID, "tracker", result.Tracker.Name)
	}
	return &result, nil
}

// Relapse records a relapse of a tracked vice.
func (h *AddictionHandler) Relapse(ctx context.Context, userID, name string) (*AddictionResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, shared.ErrEmptyTrackerName
	}

	var result AddictionResult
	err := h.store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		result, err = recordRelapse(ctx, tx, h.rules, name, h.clock.Now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("addiction relapse: %w", err)
	}

	if result.Outcome == OutcomeRelapsed {
		invalidate(ctx, h.cache, h.logger, userID)
		h.logger.Info("addiction relapse recorded",
			"user_id", userID,
			"tracker", result.Tracker.Name,
			"clean_hours", result.CleanHours,
			"record_hours", result.Tracker.RecordHours,
		)
	}
	return &result, nil
}

// Delete removes a tracker. Its past logs stay in the ledger.
func (h *AddictionHandler) Delete(ctx context.Context, userID, trackerID string) error {
	err := h.store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		return tx.DeleteTracker(ctx, trackerID)
	})
	if err != nil {
		return fmt.Errorf("addiction delete: %w", err)
	}
	invalidate(ctx, h.cache, h.logger, userID)
	return nil
}
