// Package main is the entry point of the LifeOS background worker.
//
// The worker runs the nightly roll-up on a cron schedule: streaks move,
// untrained days cost XP and every user gets a short report in Telegram.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lifeos-hub/lifeos/config"
	"github.com/lifeos-hub/lifeos/internal/bootstrap"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/telegram"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/redis"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/scheduler"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/scheduler/jobs"
	"github.com/lifeos-hub/lifeos/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := bootstrap.SetupLogger(cfg)
	log.Info("starting LifeOS worker",
		"environment", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"rollup_cron", cfg.Scheduler.RollupCron,
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled, nothing to do")
		<-ctx.Done()
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg.Database, true, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		log.Info("closing ledger store...")
		store.Close()
	}()

	cache, err := bootstrap.OpenRedis(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	tgConfig.Retrier = retry.TelegramRetrier()
	tgConfig.Logger = log
	notifier := telegram.NewNotifier(telegram.NewClient(tgConfig), store, log)

	svc := bootstrap.NewServices(store, cfg, bootstrap.ServiceOptions{
		Cache:    cache,
		Notifier: notifier,
	}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var lock jobs.DayLock
	if cache != nil {
		lock = redis.NewLocker(cache)
	}

	rollup := jobs.NewDailyRollupJob(store, svc.Rollup, lock, jobs.DailyRollupConfig{
		Location:    cfg.App.Location,
		Concurrency: cfg.Scheduler.MaxConcurrency,
		LockTTL:     cfg.Scheduler.JobTimeout,
		Logger:      log,
	})

	cron := scheduler.NewCronScheduler(
		scheduler.WithLocation(cfg.App.Location),
		scheduler.WithJobTimeout(cfg.Scheduler.JobTimeout),
		scheduler.WithCronLogger(log),
	)
	if err := cron.AddJob(cfg.Scheduler.RollupCron, rollup); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", rollup.Name(), err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RUN
	// ─────────────────────────────────────────────────────────────────────────
	if err := cron.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, job := range cron.ListJobs() {
		log.Info("job scheduled", "job", job.Name, "next_run", job.NextRun)
	}

	<-ctx.Done()
	log.Info("received shutdown signal, waiting for running jobs...")
	cron.Stop()

	if stats := rollup.LastRunStats(); stats != nil {
		logLastRun(log, stats)
	}
	log.Info("shutdown completed successfully")
	return nil
}

func logLastRun(log *slog.Logger, s *jobs.DailyRollupStats) {
	log.Info("last roll-up",
		"day", s.Day,
		"users", s.TotalUsers,
		"rolled_up", s.RolledUp,
		"penalized", s.Penalized,
		"failed", s.Failed,
		"duration", s.Duration,
	)
}
