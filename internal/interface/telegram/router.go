package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lifeos-hub/lifeos/internal/interface/telegram/handler"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Maps commands to handlers. Anything that is not a command goes to the text
// handler.
// ══════════════════════════════════════════════════════════════════════════════

// Router dispatches a request to its handler.
type Router struct {
	commands map[string]handler.Handler
	text     handler.Handler
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{commands: make(map[string]handler.Handler), logger: logger}
}

// RegisterCommand binds a command name (without the slash).
func (r *Router) RegisterCommand(name string, h handler.Handler) {
	r.commands[strings.ToLower(name)] = h
}

// RegisterText sets the handler for plain messages.
func (r *Router) RegisterText(h handler.Handler) {
	r.text = h
}

// Commands returns the registered command names.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

// Route runs the handler for req and returns its reply.
func (r *Router) Route(ctx context.Context, req handler.Request) (string, error) {
	if req.Command == "" {
		if r.text == nil || strings.TrimSpace(req.Args) == "" {
			return "", nil
		}
		return r.text.Handle(ctx, req)
	}

	h, ok := r.commands[strings.ToLower(req.Command)]
	if !ok {
		r.logger.Debug("unknown command", "command", req.Command, "telegram_id", req.TelegramID)
		return fmt.Sprintf("I don't know /%s. /help lists what I can do.", req.Command), nil
	}
	return h.Handle(ctx, req)
}
