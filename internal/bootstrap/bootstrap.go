// Package bootstrap builds the pieces shared by the binaries: the logger,
// the ledger store, the optional redis cache and the application services.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lifeos-hub/lifeos/config"
	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/postgres"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/redis"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/sqlite"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// SetupLogger builds the process logger and installs it as the default.
func SetupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Observability.LogFormat, "text") || (cfg.IsDevelopment() && cfg.Observability.LogFormat == "") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name, "version", cfg.App.Version)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Store is an opened ledger store.
type Store struct {
	ledger.Store

	// Kind is "postgres" or "sqlite".
	Kind string

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error { return s.ping(ctx) }

// Close releases the database.
func (s *Store) Close() { s.close() }

// OpenStore opens Postgres when DATABASE_URL is set and SQLite otherwise.
// Postgres migrations are applied when migrate is true; the SQLite schema is
// always applied on open.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, migrate bool, log *slog.Logger) (*Store, error) {
	if !cfg.UsePostgres() {
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("ledger store opened", "kind", "sqlite", "path", cfg.SQLitePath)
		return &Store{Store: s, Kind: "sqlite", ping: s.Ping, close: func() { _ = s.Close() }}, nil
	}

	conn, err := postgres.Connect(ctx, cfg.URL, postgres.PoolOptions{
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.ConnMaxLifetime,
		MaxConnIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	if migrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", "count", n)
	}

	log.Info("ledger store opened", "kind", "postgres")
	return &Store{Store: postgres.NewLedgerStore(conn), Kind: "postgres", ping: conn.Ping, close: conn.Close}, nil
}

// OpenRedis connects to redis. It returns nil without error when redis is
// disabled or unreachable outside production, so callers run without a cache.
func OpenRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	if cfg.Redis.Disabled || cfg.Redis.URL == "" {
		log.Info("redis disabled")
		return nil, nil
	}

	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		if cfg.IsProduction() {
			return nil, err
		}
		log.Warn("redis unavailable, running without cache", "error", err)
		return nil, nil
	}
	log.Info("redis connected")
	return cache, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICES
// ══════════════════════════════════════════════════════════════════════════════

// Services are the application handlers over one store.
type Services struct {
	Register       *command.RegisterUserHandler
	Dispatch       *command.DispatchEventsHandler
	Toggle         *command.ToggleQuestHandler
	Addiction      *command.AddictionHandler
	DeleteActivity *command.DeleteActivityHandler
	Rollup         *command.RollupDayHandler
	Dashboard      *query.GetDashboardHandler
}

// ServiceOptions are the optional collaborators of NewServices.
type ServiceOptions struct {
	// Cache enables the dashboard cache and its invalidation.
	Cache *redis.Cache

	// Notifier receives the nightly roll-up report.
	Notifier command.Notifier

	// Presets replace the built-in quest catalogue for new users.
	Presets []ledger.QuestPreset
}

// NewServices wires the handlers with the configured rules and timezone.
func NewServices(store ledger.Store, cfg *config.Config, opts ServiceOptions, log *slog.Logger) *Services {
	var (
		invalidator command.CacheInvalidator
		dashCache   query.DashboardCache
	)
	if opts.Cache != nil && cfg.Features.Enabled(config.FeatureDashboardCache) {
		dc := redis.NewDashboardCache(opts.Cache, cfg.Redis.DashboardTTL)
		invalidator = dc
		dashCache = dc
	}

	var notifier command.Notifier
	if opts.Notifier != nil && cfg.Features.Enabled(config.FeatureRollupReport) {
		notifier = flaggedNotifier{next: opts.Notifier, flags: cfg.Features}
	}

	loc := cfg.App.Location
	return &Services{
		Register: command.NewRegisterUserHandler(store, opts.Presets, log),
		Dispatch: command.NewDispatchEventsHandler(store, command.DispatchEventsHandlerConfig{
			Rules: cfg.Rules, Cache: invalidator, Logger: log,
		}),
		Toggle: command.NewToggleQuestHandler(store, command.ToggleQuestHandlerConfig{
			Location: loc, Cache: invalidator, Logger: log,
		}),
		Addiction: command.NewAddictionHandler(store, command.AddictionHandlerConfig{
			Rules: cfg.Rules, Cache: invalidator, Logger: log,
		}),
		DeleteActivity: command.NewDeleteActivityHandler(store, invalidator, log),
		Rollup: command.NewRollupDayHandler(store, command.RollupDayHandlerConfig{
			Rules: cfg.Rules, Location: loc, Notifier: notifier, Cache: invalidator, Logger: log,
		}),
		Dashboard: query.NewGetDashboardHandler(store, query.GetDashboardHandlerConfig{
			Location: loc, Cache: dashCache, Logger: log,
		}),
	}
}

// flaggedNotifier drops reports for users outside the report rollout.
type flaggedNotifier struct {
	next  command.Notifier
	flags *config.FeatureFlags
}

func (n flaggedNotifier) NotifyUser(ctx context.Context, userID, text string) error {
	if !n.flags.EnabledFor(config.FeatureRollupReport, userID) {
		return nil
	}
	return n.next.NotifyUser(ctx, userID, text)
}
