// Package retry re-runs calls to the classifier and the Telegram Bot API.
//
// An operation opts in to a retry by marking its error: Retryable for a
// transient failure, After when the remote side named a delay. Unmarked and
// Permanent errors end the loop at once. Waits double from InitialDelay up to
// MaxDelay, with a jitter band around each wait.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type marked struct {
	err       error
	retry     bool
	notBefore time.Duration
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true}
}

// After marks err as transient with a minimum wait, such as Telegram's
// retry_after.
func After(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true, notBefore: d}
}

// Permanent marks err as final even if something inside it is retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err}
}

// IsRetryable reports whether the outermost marker on err asks for a retry.
func IsRetryable(err error) bool {
	var m *marked
	return errors.As(err, &m) && m.retry
}

// cause strips the outermost marker.
func cause(err error) error {
	var m *marked
	if errors.As(err, &m) && m == err {
		return m.err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the retry policy.
type Config struct {
	// MaxAttempts counts the first call. Default 3.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. Default 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the doubled waits. An After delay may exceed it.
	// Default 30s.
	MaxDelay time.Duration

	// Jitter spreads each wait by ±Jitter of itself. Default 0.1.
	Jitter float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the first wait.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps the waits.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitter sets the jitter band, between 0 and 1.
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.Jitter = j
		}
	}
}

// WithOnRetry sets the retry callback.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier runs operations under one policy. It is safe for concurrent use.
type Retrier struct {
	config Config
}

// New creates a Retrier.
func New(opts ...Option) *Retrier {
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// Do calls op until it succeeds, returns an error that is not retryable, runs
// out of attempts or ctx ends. The returned error has its outermost marker
// removed. When ctx ends between attempts the last operation error wins.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return cause(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if !IsRetryable(err) || attempt >= r.config.MaxAttempts {
			return cause(err)
		}

		delay := r.wait(attempt, err)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cause(last)
		case <-timer.C:
		}
	}
}

// wait returns the pause after a failed attempt: InitialDelay doubled per
// attempt, capped, jittered, and never shorter than an After delay.
func (r *Retrier) wait(attempt int, err error) time.Duration {
	d := r.config.InitialDelay
	for i := 1; i < attempt && d < r.config.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, r.config.MaxDelay)

	if j := r.config.Jitter; j > 0 {
		d += time.Duration(float64(d) * j * (rand.Float64()*2 - 1))
	}

	var m *marked
	if errors.As(err, &m) && m.notBefore > d {
		d = m.notBefore
	}
	return max(d, 0)
}

// Do runs op with a one-off Retrier.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// ClassifierRetrier is the policy for classifier requests.
func ClassifierRetrier(maxAttempts int, initialDelay time.Duration, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initialDelay),
		WithMaxDelay(10*time.Second),
		WithJitter(0.2),
		WithOnRetry(onRetry),
	)
}

// TelegramRetrier is the policy for Bot API calls. Telegram's flood control
// answers with retry_after, which After carries into the wait.
func TelegramRetrier() *Retrier {
	return New(
		WithMaxAttempts(4),
		WithInitialDelay(500*time.Millisecond),
		WithMaxDelay(30*time.Second),
	)
}
