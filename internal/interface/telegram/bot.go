// Package telegram implements the chat surface of LifeOS: it receives
// updates, registers senders on first contact, routes commands and free text
// to their handlers and sends the replies back.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/telegram"
	"github.com/lifeos-hub/lifeos/internal/interface/telegram/handler"
	"github.com/lifeos-hub/lifeos/internal/interface/telegram/middleware"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Update receiving modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// ErrorReply is sent when a handler failed without panicking.
const ErrorReply = "⚠️ Something went wrong on my side. Please try again in a minute."

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Mode is "polling" or "webhook".
	Mode string

	// WebhookURL is registered with Telegram in webhook mode.
	WebhookURL string

	// WebhookSecret is echoed by Telegram in the secret token header.
	WebhookSecret string

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout bounds Stop.
	GracefulShutdownTimeout time.Duration

	RateLimit middleware.RateLimitConfig

	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Mode:                    ModePolling,
		MaxConcurrentUpdates:    32,
		GracefulShutdownTimeout: 30 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
		Logger:                  slog.Default(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// API is the part of the Bot API client the bot uses.
type API interface {
	SendText(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	SendChatAction(ctx context.Context, chatID int64, action string) error
	GetMe(ctx context.Context) (*telegram.User, error)
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

// Registrar resolves a chat account to a user, creating it on first contact.
type Registrar interface {
	Handle(ctx context.Context, cmd command.RegisterUserCommand) (*command.RegisterUserResult, error)
}

// UpdateDeduper reports whether an update is seen for the first time.
type UpdateDeduper interface {
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
}

// BotDependencies contains all dependencies for the bot handlers.
type BotDependencies struct {
	API        API
	Registrar  Registrar
	Dispatcher handler.Dispatcher
	Toggler    handler.QuestToggler
	Dashboard  handler.DashboardReader
	Classifier handler.Classifier

	// Deduper is optional; without it redelivered updates are handled again.
	Deduper UpdateDeduper

	// Now defaults to time.Now.
	Now func() time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the Telegram bot controller.
type Bot struct {
	config    BotConfig
	api       API
	registrar Registrar
	deduper   UpdateDeduper
	router    *Router
	limiter   *middleware.RateLimiter
	recovery  *middleware.Recovery
	now       func() time.Time
	logger    *slog.Logger

	running   bool
	runningMu sync.Mutex
	updateSem chan struct{}
	wg        sync.WaitGroup

	stats botCounters
}

type botCounters struct {
	received   atomic.Int64
	handled    atomic.Int64
	duplicates atomic.Int64
	limited    atomic.Int64
	errors     atomic.Int64
}

// BotStats is a snapshot of the runtime counters.
type BotStats struct {
	UpdatesReceived int64 `json:"updates_received"`
	UpdatesHandled  int64 `json:"updates_handled"`
	Duplicates      int64 `json:"duplicates"`
	RateLimited     int64 `json:"rate_limited"`
	Errors          int64 `json:"errors"`
}

// NewBot wires the handlers and middleware.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if deps.API == nil || deps.Registrar == nil {
		return nil, errors.New("telegram api and registrar are required")
	}
	if deps.Dispatcher == nil || deps.Toggler == nil || deps.Dashboard == nil || deps.Classifier == nil {
		return nil, errors.New("telegram handlers are missing dependencies")
	}

	defaults := DefaultBotConfig()
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = defaults.MaxConcurrentUpdates
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	router := NewRouter(config.Logger)
	router.RegisterCommand("start", handler.Start())
	router.RegisterCommand("help", handler.Help())
	router.RegisterCommand("stats", handler.Stats(deps.Dashboard))
	router.RegisterCommand("quests", handler.Quests(deps.Dashboard))
	router.RegisterCommand("done", handler.Toggle(deps.Toggler, true))
	router.RegisterCommand("undo", handler.Toggle(deps.Toggler, false))
	router.RegisterText(handler.NewMessage(deps.Classifier, deps.Dispatcher, config.Logger))

	return &Bot{
		config:    config,
		api:       deps.API,
		registrar: deps.Registrar,
		deduper:   deps.Deduper,
		router:    router,
		limiter:   middleware.NewRateLimiter(config.RateLimit),
		recovery:  middleware.NewRecovery(config.Logger),
		now:       deps.Now,
		logger:    config.Logger,
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}, nil
}

// Stats returns the runtime counters.
func (b *Bot) Stats() BotStats {
	return BotStats{
		UpdatesReceived: b.stats.received.Load(),
		UpdatesHandled:  b.stats.handled.Load(),
		Duplicates:      b.stats.duplicates.Load(),
		RateLimited:     b.stats.limited.Load(),
		Errors:          b.stats.errors.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and starts receiving updates. In polling mode it
// blocks until ctx is done; in webhook mode it registers the webhook and
// returns, leaving delivery to the HTTP server calling HandleUpdate.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}
	b.logger.Info("starting telegram bot", "mode", b.config.Mode, "username", me.Username)

	b.wg.Add(1)
	go b.sweepLimiter(ctx)

	switch b.config.Mode {
	case ModePolling:
		if err := b.api.DeleteWebhook(ctx, false); err != nil {
			return fmt.Errorf("failed to delete webhook: %w", err)
		}
		return b.api.StartPolling(ctx, b.HandleUpdate)
	case ModeWebhook:
		if b.config.WebhookURL == "" {
			return errors.New("webhook URL is required for webhook mode")
		}
		if err := b.api.SetWebhook(ctx, b.config.WebhookURL, b.config.WebhookSecret); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		b.logger.Info("webhook registered", "url", b.config.WebhookURL)
		return nil
	default:
		return fmt.Errorf("unknown bot mode: %s", b.config.Mode)
	}
}

// Stop waits for in-flight updates, bounded by the shutdown timeout. The
// context passed to Start must be cancelled first.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("telegram bot stopped", "handled", b.stats.handled.Load())
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *Bot) sweepLimiter(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.limiter.Sweep(); n > 0 {
				b.logger.Debug("rate limiter swept", "dropped", n)
			}
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes one update. Only text messages from people in
// private chats are handled. Errors are reported to the user and logged; the
// returned error is non-nil only when the reply itself could not be sent.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	select {
	case b.updateSem <- struct{}{}:
		defer func() { <-b.updateSem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	defer b.wg.Done()
	b.stats.received.Add(1)

	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.Text == "" || !telegram.IsPrivateChat(msg) {
		return nil
	}

	if b.deduper != nil {
		first, err := b.deduper.FirstSeen(ctx, update.UpdateID)
		if err != nil {
			b.logger.Warn("update dedupe failed", "update_id", update.UpdateID, "error", err)
		} else if !first {
			b.stats.duplicates.Add(1)
			b.logger.Debug("duplicate update dropped", "update_id", update.UpdateID)
			return nil
		}
	}

	telegramID := msg.From.ID
	chatID := msg.Chat.ID

	if res := b.limiter.Check(telegramID); !res.Allowed {
		b.stats.limited.Add(1)
		return b.send(ctx, chatID, fmt.Sprintf("⏳ Easy there! Try again in %s.", res.RetryAfter.Round(time.Second)))
	}

	req := handler.Request{
		TelegramID:  telegramID,
		ChatID:      chatID,
		DisplayName: msg.From.FullName(),
		Command:     telegram.ExtractCommand(msg),
		ReceivedAt:  b.received(msg),
	}
	if req.Command != "" {
		req.Args = telegram.ExtractCommandArgs(msg)
	} else {
		req.Args = msg.Text
	}
	what := "text"
	if req.Command != "" {
		what = "/" + req.Command
	}

	var reply string
	err := b.recovery.Run(ctx, telegramID, what, func(ctx context.Context) error {
		reg, err := b.registrar.Handle(ctx, command.RegisterUserCommand{TelegramID: telegramID, DisplayName: req.DisplayName})
		if err != nil {
			return err
		}
		req.UserID = reg.User.ID
		req.NewUser = reg.Created
		if reg.User.DisplayName != "" {
			req.DisplayName = reg.User.DisplayName
		}

		if req.Command == "" {
			if err := b.api.SendChatAction(ctx, chatID, "typing"); err != nil {
				b.logger.Debug("chat action failed", "chat_id", chatID, "error", err)
			}
		}

		reply, err = b.router.Route(ctx, req)
		return err
	})

	var panicErr *middleware.PanicError
	switch {
	case errors.As(err, &panicErr):
		b.stats.errors.Add(1)
		reply = middleware.PanicMessage
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.stats.errors.Add(1)
		b.logger.Error("failed to handle update",
			"update_id", update.UpdateID,
			"telegram_id", telegramID,
			"handler", what,
			"error", err,
		)
		reply = ErrorReply
	default:
		b.stats.handled.Add(1)
	}

	if reply == "" {
		return nil
	}
	return b.send(ctx, chatID, reply)
}

func (b *Bot) received(msg *telegram.Message) time.Time {
	if msg.Date > 0 {
		return time.Unix(msg.Date, 0).UTC()
	}
	return b.now().UTC()
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) error {
	if _, err := b.api.SendText(ctx, chatID, text); err != nil {
		if telegram.IsChatUnreachable(err) {
			b.logger.Info("chat unreachable", "chat_id", chatID, "error", err)
			return nil
		}
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
