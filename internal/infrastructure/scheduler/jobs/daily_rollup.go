// Package jobs contains the scheduled jobs of the progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ROLLUP JOB
// ══════════════════════════════════════════════════════════════════════════════

// UserLister lists the users to roll up.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// RollupRunner closes one user's day.
type RollupRunner interface {
	Handle(ctx context.Context, cmd command.RollupDayCommand) (*command.RollupDayResult, error)
}

// DayLock keeps two workers from rolling up the same day at once.
type DayLock interface {
	TryLock(ctx context.Context, resource string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DailyRollupConfig contains configuration for the daily roll-up job.
type DailyRollupConfig struct {
	// Location decides which calendar day "today" is.
	Location *time.Location

	// Concurrency is the number of users rolled up in parallel.
	Concurrency int

	// LockTTL bounds how long the day lock is held.
	LockTTL time.Duration

	Clock  Clock
	Logger *slog.Logger
}

// DefaultDailyRollupConfig returns sensible defaults.
func DefaultDailyRollupConfig() DailyRollupConfig {
	return DailyRollupConfig{
		Location:    time.UTC,
		Concurrency: 8,
		LockTTL:     10 * time.Minute,
	}
}

// DailyRollupStats contains statistics from a roll-up run.
type DailyRollupStats struct {
	Day           string
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalUsers    int
	RolledUp      int
	AlreadyRolled int
	Penalized     int
	Failed        int
	SkippedByLock bool
}

// DailyRollupJob closes the day for every user.
type DailyRollupJob struct {
	users  UserLister
	rollup RollupRunner
	lock   DayLock
	config DailyRollupConfig

	lastRunStats atomic.Value // *DailyRollupStats
}

// NewDailyRollupJob creates a new daily roll-up job. lock may be nil; the
// once-per-day marker in the store still holds.
func NewDailyRollupJob(users UserLister, rollup RollupRunner, lock DayLock, config DailyRollupConfig) *DailyRollupJob {
	defaults := DefaultDailyRollupConfig()
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &DailyRollupJob{
		users:  users,
		rollup: rollup,
		lock:   lock,
		config: config,
	}
}

// Name returns the job name.
func (j *DailyRollupJob) Name() string {
	return "daily_rollup"
}

// Description returns a human-readable description.
func (j *DailyRollupJob) Description() string {
	return "Closes the day for every user: streaks, missed-training penalty and report"
}

// Run rolls up the day before the current one. It is scheduled shortly after
// midnight so the closed day has no minutes left to log into.
func (j *DailyRollupJob) Run(ctx context.Context) error {
	_, err := j.RunDay(ctx, timeutil.Yesterday(j.config.Clock.Now(), j.config.Location))
	return err
}

// RunDay rolls up the calendar day containing day for every user.
// Per-user failures are counted, not returned.
func (j *DailyRollupJob) RunDay(ctx context.Context, day time.Time) (*DailyRollupStats, error) {
	logger := j.config.Logger
	stats := &DailyRollupStats{
		Day:       timeutil.DayKey(day, j.config.Location),
		StartedAt: time.Now(),
	}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	if j.lock != nil {
		release, ok, err := j.lock.TryLock(ctx, "rollup:"+stats.Day, j.config.LockTTL)
		if err != nil {
			// The store marker still prevents a double roll-up.
			logger.Warn("rollup lock unavailable, continuing without it", "day", stats.Day, "error", err)
		} else if !ok {
			logger.Info("rollup already running elsewhere", "day", stats.Day)
			stats.SkippedByLock = true
			return stats, nil
		} else {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("failed to release rollup lock", "day", stats.Day, "error", err)
				}
			}()
		}
	}

	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("list users: %w", err)
	}
	stats.TotalUsers = len(userIDs)
	logger.Info("starting daily_rollup job", "day", stats.Day, "users", stats.TotalUsers)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(j.config.Concurrency)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := j.rollup.Handle(ctx, command.RollupDayCommand{UserID: userID, Day: day})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				logger.Error("rollup failed", "user_id", userID, "day", stats.Day, "error", err)
			case res.Outcome == command.OutcomeAlreadyRolledUp:
				stats.AlreadyRolled++
			default:
				stats.RolledUp++
				if res.Penalized {
					stats.Penalized++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("daily_rollup job completed",
		"day", stats.Day,
		"total", stats.TotalUsers,
		"rolled_up", stats.RolledUp,
		"already", stats.AlreadyRolled,
		"penalized", stats.Penalized,
		"failed", stats.Failed,
	)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("rollup %s interrupted: %w", stats.Day, err)
	}
	return stats, nil
}

// LastRunStats returns the statistics of the last run, or nil.
func (j *DailyRollupJob) LastRunStats() *DailyRollupStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*DailyRollupStats)
	}
	return nil
}
