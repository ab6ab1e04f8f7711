package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseCronExpression(t *testing.T) {
	cases := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{DailyRollupAt, false},
		{"*/15 8-18 * * 1-5", false},
		{"0 9,12,18 * * *", false},
		{"10-40/10 * * * *", false},
		{"* * * *", true},
		{"60 * * * *", true},
		{"*/0 * * * *", true},
		{"5-1 * * * *", true},
		{"a * * * *", true},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := ParseCronExpression(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronExpression_Next(t *testing.T) {
	almaty, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	expr := MustParseCronExpression(DailyRollupAt)

	from := time.Date(2026, 3, 10, 23, 55, 0, 0, almaty)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 5, 0, 0, almaty), expr.Next(from))

	from = time.Date(2026, 3, 11, 0, 5, 0, 0, almaty)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 5, 0, 0, almaty), expr.Next(from))

	steps := MustParseCronExpression("10-40/10 * * * *")
	assert.Equal(t, time.Date(2026, 1, 1, 0, 20, 0, 0, time.UTC),
		steps.Next(time.Date(2026, 1, 1, 0, 10, 30, 0, time.UTC)))

	// February 30th never comes.
	never := MustParseCronExpression("0 0 30 2 *")
	assert.True(t, never.Next(from).IsZero())
}

func TestCronScheduler_AddJob(t *testing.T) {
	cs := NewCronScheduler()
	job := JobFunc{JobName: "rollup", Fn: func(context.Context) error { return nil }}

	require.NoError(t, cs.AddJob(DailyRollupAt, job))
	assert.Error(t, cs.AddJob(DailyRollupAt, job))
	assert.Error(t, cs.AddJob("bogus", JobFunc{JobName: "other"}))

	status, ok := cs.GetJobStatus("rollup")
	require.True(t, ok)
	assert.Equal(t, DailyRollupAt, status.Expression.String())
	assert.False(t, status.NextRun.IsZero())
	assert.Len(t, cs.ListJobs(), 1)
}

func TestCronScheduler_RunNow(t *testing.T) {
	cs := NewCronScheduler(WithJobTimeout(50 * time.Millisecond))

	var calls atomic.Int32
	require.NoError(t, cs.AddJob("* * * * *", JobFunc{JobName: "ok", Fn: func(context.Context) error {
		calls.Add(1)
		return nil
	}}))
	require.NoError(t, cs.AddJob("* * * * *", JobFunc{JobName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	require.NoError(t, cs.AddJob("* * * * *", JobFunc{JobName: "boom", Fn: func(context.Context) error {
		panic("kaboom")
	}}))

	ctx := context.Background()
	require.NoError(t, cs.RunNow(ctx, "ok"))
	assert.Equal(t, int32(1), calls.Load())

	err := cs.RunNow(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = cs.RunNow(ctx, "boom")
	assert.ErrorContains(t, err, "panicked")

	status, _ := cs.GetJobStatus("boom")
	assert.Equal(t, int64(1), status.FailCount)
	assert.False(t, status.Running)

	assert.True(t, errors.Is(cs.RunNow(ctx, "missing"), ErrJobNotFound))
}

type fakeNow struct{ nanos atomic.Int64 }

func newFakeNow(t time.Time) *fakeNow {
	f := &fakeNow{}
	f.nanos.Store(t.UnixNano())
	return f
}

func (f *fakeNow) Now() time.Time          { return time.Unix(0, f.nanos.Load()).UTC() }
func (f *fakeNow) Advance(d time.Duration) { f.nanos.Add(int64(d)) }

func TestCronScheduler_RunsDueJobs(t *testing.T) {
	cs := NewCronScheduler()
	clock := newFakeNow(time.Date(2026, 3, 10, 23, 54, 0, 0, time.UTC))
	cs.now = clock.Now

	done := make(chan struct{}, 1)
	require.NoError(t, cs.AddJob(DailyRollupAt, JobFunc{JobName: "rollup", Fn: func(context.Context) error {
		done <- struct{}{}
		return nil
	}}))

	// Not due yet.
	cs.checkAndRunJobs(context.Background())
	select {
	case <-done:
		t.Fatal("job ran early")
	default:
	}

	clock.Advance(time.Minute)
	cs.checkAndRunJobs(context.Background())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	cs.wg.Wait()

	status, _ := cs.GetJobStatus("rollup")
	assert.Equal(t, int64(1), status.RunCount)
	assert.Equal(t, time.Date(2026, 3, 11, 23, 55, 0, 0, time.UTC), status.NextRun)
}

func TestCronScheduler_SkipsOverlappingRun(t *testing.T) {
	cs := NewCronScheduler()
	clock := newFakeNow(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	cs.now = clock.Now

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	require.NoError(t, cs.AddJob("* * * * *", JobFunc{JobName: "slow", Fn: func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}}))

	clock.Advance(time.Minute)
	cs.checkAndRunJobs(context.Background())
	<-started

	clock.Advance(time.Minute)
	cs.checkAndRunJobs(context.Background())

	close(release)
	cs.wg.Wait()

	status, _ := cs.GetJobStatus("slow")
	assert.Equal(t, int64(1), status.RunCount)
	assert.Len(t, started, 0)
}

func TestCronScheduler_StartStop(t *testing.T) {
	cs := NewCronScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, cs.Start(ctx))
	assert.Error(t, cs.Start(ctx))
	cs.Stop()
	cs.Stop()

	// Restartable after a stop; cancelling the context also ends the loop.
	require.NoError(t, cs.Start(ctx))
	cancel()
	cs.Stop()
}
