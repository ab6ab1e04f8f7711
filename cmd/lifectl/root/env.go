package root

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lifeos-hub/lifeos/config"
	"github.com/lifeos-hub/lifeos/internal/bootstrap"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/telegram"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/redis"
	"github.com/lifeos-hub/lifeos/pkg/retry"
)

var errUserRequired = errors.New("--user is required")

// env is everything a command needs, opened from the environment.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store *bootstrap.Store
	cache *redis.Cache
	svc   *bootstrap.Services
}

type envOptions struct {
	// notify sends roll-up reports through Telegram when a token is set.
	notify bool
}

func loadConfig(opts *globalOptions) (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.verbose {
		return cfg, bootstrap.SetupLogger(cfg), nil
	}
	return cfg, slog.New(slog.DiscardHandler), nil
}

func openEnv(ctx context.Context, opts *globalOptions, eo envOptions) (*env, func(), error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Database, false, log)
	if err != nil {
		return nil, nil, err
	}

	cache, err := bootstrap.OpenRedis(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	var so bootstrap.ServiceOptions
	so.Cache = cache
	if eo.notify {
		if cfg.Telegram.Token == "" {
			log.Warn("TELEGRAM_BOT_TOKEN is not set, reports are not sent")
		} else {
			tc := telegram.DefaultClientConfig(cfg.Telegram.Token)
			tc.Retrier = retry.TelegramRetrier()
			tc.Logger = log
			so.Notifier = telegram.NewNotifier(telegram.NewClient(tc), store, log)
		}
	}

	e := &env{
		cfg:   cfg,
		log:   log,
		store: store,
		cache: cache,
		svc:   bootstrap.NewServices(store, cfg, so, log),
	}
	cleanup := func() {
		if cache != nil {
			_ = cache.Close()
		}
		store.Close()
	}
	return e, cleanup, nil
}

// resolveUser accepts an internal user ID or a numeric Telegram ID.
func (e *env) resolveUser(ctx context.Context, ref string) (*ledger.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errUserRequired
	}
	if tgID, err := strconv.ParseInt(ref, 10, 64); err == nil {
		u, err := e.store.GetUserByTelegramID(ctx, tgID)
		if err == nil {
			return u, nil
		}
		if !shared.IsNotFound(err) {
			return nil, err
		}
	}
	u, err := e.store.GetUser(ctx, ref)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("no user %q", ref)
		}
		return nil, err
	}
	return u, nil
}

// invalidate drops the cached dashboard after writes that bypass the
// command handlers.
func (e *env) invalidate(ctx context.Context, userID string) {
	if e.cache == nil {
		return
	}
	dc := redis.NewDashboardCache(e.cache, e.cfg.Redis.DashboardTTL)
	if err := dc.InvalidateUser(ctx, userID); err != nil {
		e.log.Warn("dashboard cache invalidation failed", "user_id", userID, "error", err)
	}
}
