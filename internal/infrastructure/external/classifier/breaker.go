package classifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CIRCUIT BREAKER
// After threshold consecutive outages the classifier is left alone for
// cooldown; then one trial request decides whether it is back.
// ══════════════════════════════════════════════════════════════════════════════

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var errBreakerOpen = errors.New("classifier circuit is open")

type breaker struct {
	threshold int
	cooldown  time.Duration
	onChange  func(from, to breakerState)
	now       func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

func newBreaker(threshold int, cooldown time.Duration, onChange func(from, to breakerState)) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, onChange: onChange, now: time.Now}
}

// countsAsOutage decides which errors move the breaker. An answer the model
// got wrong, or a caller that gave up, says nothing about availability.
func countsAsOutage(err error) bool {
	return !errors.Is(err, shared.ErrInvalidFormat) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// run calls fn unless the circuit is open. Only one request passes while a
// trial is in flight.
func (b *breaker) run(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return errBreakerOpen
		}
		b.transition(stateHalfOpen)
		return nil
	case stateHalfOpen:
		return errBreakerOpen
	default:
		return nil
	}
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !countsAsOutage(err) {
		b.failures = 0
		if b.state == stateHalfOpen {
			b.transition(stateClosed)
		}
		return
	}

	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.transition(stateOpen)
	}
}

func (b *breaker) transition(to breakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to != stateOpen {
		b.failures = 0
	}
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
