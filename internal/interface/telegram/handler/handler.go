// Package handler contains the Telegram command and message handlers. Each
// handler turns one request into the reply text; the bot sends it.
package handler

import (
	"context"
	"time"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/domain/event"
)

// Request is one message from a registered user.
type Request struct {
	// UserID is the internal user ID.
	UserID string

	TelegramID  int64
	ChatID      int64
	DisplayName string

	// NewUser is true when this message registered the user.
	NewUser bool

	// Command is the command name without the slash, empty for free text.
	Command string

	// Args is the text after the command, or the whole text for free text.
	Args string

	ReceivedAt time.Time
}

// Handler produces the reply to a request. An empty reply sends nothing.
type Handler interface {
	Handle(ctx context.Context, req Request) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Classifier turns free text into events.
type Classifier interface {
	Classify(ctx context.Context, text string) (event.DecodeResult, error)
}

// Dispatcher applies a batch of events.
type Dispatcher interface {
	Handle(ctx context.Context, cmd command.DispatchEventsCommand) (*command.DispatchEventsResult, error)
}

// DashboardReader reads the dashboard of a user.
type DashboardReader interface {
	Handle(ctx context.Context, q query.GetDashboardQuery) (*query.Dashboard, error)
}

// QuestToggler toggles a daily quest.
type QuestToggler interface {
	Handle(ctx context.Context, cmd command.ToggleQuestCommand) (*command.ToggleQuestResult, error)
}
