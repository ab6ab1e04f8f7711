// Package classifier turns free-text messages into typed life events by
// asking a chat-completions language model for the event JSON.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
	"github.com/lifeos-hub/lifeos/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 300
)

// Config contains configuration for the classifier client.
type Config struct {
	// URL is the chat completions endpoint,
	// e.g. https://api.openai.com/v1/chat/completions
	URL string

	APIKey string
	Model  string

	// Timeout bounds a single HTTP request
	Timeout time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration

	MaxTokens   int
	Temperature float64

	// SystemPrompt overrides the default instructions
	SystemPrompt string

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client calls the language model and decodes its answer.
type Client struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *breaker
	logger     *slog.Logger
}

// NewClient creates a new classifier client.
func NewClient(config Config) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Second
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = time.Minute
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}

	logger := config.Logger.With("component", "classifier")
	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
	c.retrier = retry.ClassifierRetrier(config.MaxRetries, config.RetryBaseDelay,
		func(attempt int, err error, delay time.Duration) {
			logger.Warn("classifier call failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		})
	c.breaker = newBreaker(config.BreakerThreshold, config.BreakerTimeout, func(from, to breakerState) {
		logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return c
}

// Classify returns the events found in text. Items of the answer that do not
// decode are reported in the result's Skipped list.
func (c *Client) Classify(ctx context.Context, text string) (event.DecodeResult, error) {
	var result event.DecodeResult

	err := c.breaker.run(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			content, err := c.complete(ctx, text)
			if err != nil {
				return err
			}
			decoded, err := event.Decode([]byte(content))
			if err != nil {
				return retry.Permanent(err)
			}
			result = decoded
			return nil
		})
	})

	switch {
	case err == nil:
		c.logger.Debug("message classified", "events", len(result.Events), "skipped", len(result.Skipped))
		return result, nil
	case errors.Is(err, errBreakerOpen):
		return event.DecodeResult{}, shared.WrapError("classifier", "Classify", shared.ErrServiceUnavailable,
			"classifier is unavailable", err)
	case errors.Is(err, shared.ErrInvalidFormat):
		return event.DecodeResult{}, shared.WrapError("classifier", "Parse", shared.ErrInvalidFormat,
			"invalid response from classifier", err)
	case ctx.Err() != nil:
		return event.DecodeResult{}, ctx.Err()
	default:
		return event.DecodeResult{}, shared.WrapError("classifier", "Classify", shared.ErrExternalService,
			"classifier request failed", err)
	}
}

// complete sends one chat completion request and returns the model's text.
func (c *Client) complete(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.config.SystemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    c.config.Temperature,
		MaxTokens:      c.config.MaxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", retry.Permanent(ctx.Err())
		}
		return "", retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("classifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.Retryable(statusErr)
		}
		return "", retry.Permanent(statusErr)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", retry.Permanent(shared.WrapError("classifier", "Parse", shared.ErrInvalidFormat,
			"response is not JSON", err))
	}
	if out.Error != nil {
		return "", retry.Permanent(fmt.Errorf("classifier error: %s", out.Error.Message))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", retry.Permanent(shared.NewDomainError("classifier", "Parse", shared.ErrInvalidFormat,
			"response has no content"))
	}
	return out.Choices[0].Message.Content, nil
}

// Check reports the classifier as unavailable while its circuit is open. It
// fits the health checker's check signature.
func (c *Client) Check(context.Context) error {
	if c.breaker.current() == stateOpen {
		return shared.ErrClassifierUnavailable
	}
	return nil
}
