package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
)

// UserDirectory resolves internal user IDs to Telegram accounts.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*ledger.User, error)
}

// Notifier sends messages to users by internal ID. In private chats the chat
// ID equals the Telegram user ID.
type Notifier struct {
	client *Client
	users  UserDirectory
	logger *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(client *Client, users UserDirectory, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, users: users, logger: logger}
}

// NotifyUser sends text to the user's chat.
func (n *Notifier) NotifyUser(ctx context.Context, userID, text string) error {
	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify %s: %w", userID, err)
	}

	if _, err := n.client.SendText(ctx, user.TelegramID, text); err != nil {
		if IsChatUnreachable(err) {
			n.logger.Info("user chat unreachable", "user_id", userID, "error", err)
		}
		return fmt.Errorf("notify %s: %w", userID, err)
	}
	return nil
}
