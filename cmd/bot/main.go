// Package main is the entry point of the LifeOS Telegram bot.
//
// The bot turns chat messages into XP: commands toggle quests and show
// stats, free text goes through the classifier and the event dispatcher.
// The same process serves the health endpoint, the dashboard API and, in
// webhook mode, the Telegram webhook.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lifeos-hub/lifeos/config"
	"github.com/lifeos-hub/lifeos/internal/bootstrap"
	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/classifier"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/telegram"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/redis"
	httpserver "github.com/lifeos-hub/lifeos/internal/interface/http"
	"github.com/lifeos-hub/lifeos/internal/interface/http/handlers"
	bot "github.com/lifeos-hub/lifeos/internal/interface/telegram"
	"github.com/lifeos-hub/lifeos/internal/interface/telegram/handler"
	"github.com/lifeos-hub/lifeos/pkg/retry"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("bot exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := bootstrap.SetupLogger(cfg)
	log.Info("starting LifeOS bot",
		"environment", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"webhook", cfg.Telegram.UseWebhook,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := bootstrap.OpenStore(ctx, cfg.Database, true, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	cache, err := bootstrap.OpenRedis(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	tgConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	if secs := int(cfg.Telegram.PollingTimeout.Seconds()); secs > 0 {
		tgConfig.PollTimeout = secs
		tgConfig.Timeout = cfg.Telegram.PollingTimeout + 30*time.Second
	}
	tgConfig.Retrier = retry.TelegramRetrier()
	tgConfig.Logger = log
	tgClient := telegram.NewClient(tgConfig)

	var (
		cls       handler.Classifier = disabledClassifier{}
		clsClient *classifier.Client
	)
	switch {
	case !cfg.Features.Enabled(config.FeatureFreeText):
		log.Info("free-text logging disabled by feature flag")
	case cfg.Classifier.URL == "":
		log.Warn("free-text logging disabled: CLASSIFIER_URL is not set")
	default:
		clsClient = classifier.NewClient(classifier.Config{
			URL:              cfg.Classifier.URL,
			APIKey:           cfg.Classifier.APIKey,
			Model:            cfg.Classifier.Model,
			Timeout:          cfg.Classifier.RequestTimeout,
			MaxRetries:       cfg.Classifier.MaxRetries,
			RetryBaseDelay:   cfg.Classifier.RetryBaseDelay,
			BreakerThreshold: cfg.Classifier.BreakerThreshold,
			BreakerTimeout:   cfg.Classifier.BreakerTimeout,
			Logger:           log,
		})
		cls = clsClient
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	svc := bootstrap.NewServices(store, cfg, bootstrap.ServiceOptions{
		Cache:    cache,
		Notifier: telegram.NewNotifier(tgClient, store, log),
	}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	botConfig := bot.DefaultBotConfig()
	if cfg.Telegram.UseWebhook {
		botConfig.Mode = bot.ModeWebhook
	}
	botConfig.WebhookURL = cfg.Telegram.WebhookURL
	botConfig.WebhookSecret = cfg.Telegram.WebhookSecret
	botConfig.RateLimit.PerMinute = cfg.Telegram.UserRateLimit
	botConfig.GracefulShutdownTimeout = cfg.App.ShutdownTimeout
	botConfig.Logger = log

	botDeps := bot.BotDependencies{
		API:        tgClient,
		Registrar:  svc.Register,
		Dispatcher: svc.Dispatch,
		Toggler:    svc.Toggle,
		Dashboard:  svc.Dashboard,
		Classifier: cls,
	}
	if cache != nil {
		botDeps.Deduper = redis.NewUpdateDeduper(cache, cfg.Telegram.DedupeTTL)
	}

	tgBot, err := bot.NewBot(botConfig, botDeps)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", store.Ping)
	if cache != nil {
		health.AddCheck("redis", cache.Ping)
	}
	if clsClient != nil {
		health.AddCheck("classifier", clsClient.Check)
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.HTTP.Addr
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.TokenHash = cfg.HTTP.DashboardTokenHash
	httpConfig.WebhookSecret = cfg.Telegram.WebhookSecret

	httpDeps := httpserver.Dependencies{Health: health, Logger: log}
	if cfg.Features.Enabled(config.FeatureDashboardAPI) {
		httpDeps.API = httpserver.NewAPI(svc.Dashboard, svc.Toggle, svc.DeleteActivity, svc.Addiction, log)
	}
	if cfg.Telegram.UseWebhook {
		httpDeps.Webhook = tgBot
	}

	server, err := httpserver.NewServer(httpConfig, httpDeps)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. START
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 2)

	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telegram bot: %w", err)
		}
	}()

	log.Info("LifeOS bot is running", "http_address", cfg.HTTP.Addr, "store", store.Kind)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case runErr = <-errCh:
		log.Error("service error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bot gracefully", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
	}

	stats := tgBot.Stats()
	log.Info("shutdown completed",
		"updates", stats.UpdatesReceived,
		"handled", stats.UpdatesHandled,
		"errors", stats.Errors,
	)
	return runErr
}

// disabledClassifier recognizes nothing, so free text gets the
// "nothing recognized" reply while commands keep working.
type disabledClassifier struct{}

func (disabledClassifier) Classify(context.Context, string) (event.DecodeResult, error) {
	return event.DecodeResult{}, nil
}
