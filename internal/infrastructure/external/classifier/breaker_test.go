package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

// manualBreaker returns a breaker on a clock the test moves.
func manualBreaker(threshold int, cooldown time.Duration) (*breaker, *time.Time, *[]breakerState) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var transitions []breakerState
	b := newBreaker(threshold, cooldown, func(_, to breakerState) { transitions = append(transitions, to) })
	b.now = func() time.Time { return now }
	return b, &now, &transitions
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	b, now, transitions := manualBreaker(2, time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, b.run(ctx, fail), errDown)
	assert.Equal(t, stateClosed, b.current())
	assert.ErrorIs(t, b.run(ctx, fail), errDown)
	assert.Equal(t, stateOpen, b.current())

	assert.ErrorIs(t, b.run(ctx, ok), errBreakerOpen)

	*now = now.Add(time.Minute)
	require.NoError(t, b.run(ctx, ok))
	assert.Equal(t, stateClosed, b.current())
	assert.Equal(t, []breakerState{stateOpen, stateHalfOpen, stateClosed}, *transitions)
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b, now, _ := manualBreaker(1, time.Minute)
	ctx := context.Background()

	_ = b.run(ctx, fail)
	*now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, b.run(ctx, fail), errDown)
	assert.Equal(t, stateOpen, b.current())
	assert.ErrorIs(t, b.run(ctx, ok), errBreakerOpen, "cooldown restarts from the failed trial")
}

func TestBreaker_OneTrialAtATime(t *testing.T) {
	b, now, _ := manualBreaker(1, time.Minute)
	ctx := context.Background()

	_ = b.run(ctx, fail)
	*now = now.Add(time.Minute)

	err := b.run(ctx, func(ctx context.Context) error {
		assert.ErrorIs(t, b.run(ctx, ok), errBreakerOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, stateClosed, b.current())
}

func TestBreaker_IgnoresBadAnswersAndCancellation(t *testing.T) {
	b, _, transitions := manualBreaker(1, time.Minute)
	ctx := context.Background()

	badAnswer := fmt.Errorf("parse: %w", shared.ErrInvalidFormat)
	for _, err := range []error{badAnswer, context.Canceled, context.DeadlineExceeded} {
		_ = b.run(ctx, func(context.Context) error { return err })
	}
	assert.Equal(t, stateClosed, b.current())
	assert.Empty(t, *transitions)

	_ = b.run(ctx, fail)
	assert.Equal(t, stateOpen, b.current())
	assert.Equal(t, "open", b.current().String())
}
