package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast() []Option {
	return []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
}

func TestDo_RetriesRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errFlaky)
		}
		return nil
	}, append(fast(), WithMaxAttempts(5))...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAndUnwraps(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	}, append(fast(), WithMaxAttempts(2))...)

	assert.Equal(t, 2, calls)
	assert.Same(t, errFlaky, err)
}

func TestDo_PermanentAndPlainErrorsStop(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	}, fast()...)
	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)

	calls = 0
	err = Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, fast()...)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_HonoursRetryAfter(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return After(errFlaky, 20*time.Millisecond)
		}
		return nil
	}, append(fast(), WithOnRetry(func(_ int, _ error, d time.Duration) {
		delays = append(delays, d)
	}))...)

	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, 20*time.Millisecond, delays[0])
	assert.True(t, IsRetryable(After(errFlaky, time.Second)))
}

func TestWait_DoublesUpToMax(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(35*time.Millisecond), WithJitter(0))
	transient := Retryable(errFlaky)

	assert.Equal(t, 10*time.Millisecond, r.wait(1, transient))
	assert.Equal(t, 20*time.Millisecond, r.wait(2, transient))
	assert.Equal(t, 35*time.Millisecond, r.wait(3, transient))
	assert.Equal(t, 35*time.Millisecond, r.wait(40, transient))
	assert.Equal(t, time.Second, r.wait(1, After(errFlaky, time.Second)), "retry_after may exceed the cap")
}

func TestWait_JitterStaysInBand(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithJitter(0.2))
	for i := 0; i < 50; i++ {
		d := r.wait(1, Retryable(errFlaky))
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestMarkers(t *testing.T) {
	assert.Nil(t, Retryable(nil))
	assert.Nil(t, After(nil, time.Second))
	assert.Nil(t, Permanent(nil))

	assert.True(t, IsRetryable(Retryable(errFlaky)))
	assert.False(t, IsRetryable(Permanent(Retryable(errFlaky))), "outermost marker wins")
	assert.False(t, IsRetryable(errFlaky))
	assert.ErrorIs(t, Retryable(errFlaky), errFlaky)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Retryable(errFlaky)
	}, WithInitialDelay(time.Hour), WithJitter(0))

	assert.Equal(t, 1, calls)
	assert.Same(t, errFlaky, err)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
