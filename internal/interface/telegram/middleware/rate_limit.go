// Package middleware contains the per-update guards of the Telegram bot.
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITING
// Every message may cost a classifier call, so chats are throttled with a
// token bucket each.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// PerMinute is the sustained number of messages per chat.
	PerMinute int

	// Burst is the number of messages allowed at once.
	Burst int

	// IdleTTL drops buckets of chats that have been quiet this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 20,
		Burst:     5,
		IdleTTL:   30 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles messages per Telegram user.
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets map[int64]*bucket
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.PerMinute <= 0 {
		config.PerMinute = defaults.PerMinute
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[int64]*bucket),
		now:     time.Now,
	}
}

// RateLimitResult is the outcome of a check.
type RateLimitResult struct {
	Allowed bool

	// RetryAfter is how long to wait for the next token when not allowed.
	RetryAfter time.Duration
}

// Check consumes a token for telegramID.
func (rl *RateLimiter) Check(telegramID int64) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[telegramID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(rl.config.PerMinute)/60), rl.config.Burst)}
		rl.buckets[telegramID] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return RateLimitResult{}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return RateLimitResult{RetryAfter: delay}
	}
	return RateLimitResult{Allowed: true}
}

// Sweep forgets idle chats and returns how many were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTTL)
	dropped := 0
	for id, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, id)
			dropped++
		}
	}
	return dropped
}
