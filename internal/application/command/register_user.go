package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// First contact creates the user, its stats row and the default quest list.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand identifies a chat account.
type RegisterUserCommand struct {
	TelegramID  int64
	DisplayName string
}

// RegisterUserResult contains the user and whether it was just created.
type RegisterUserResult struct {
	User    *ledger.User
	Created bool
}

// RegisterUserHandler handles the RegisterUserCommand.
type RegisterUserHandler struct {
	store   ledger.Store
	presets []ledger.QuestPreset
	logger  *slog.Logger
}

// NewRegisterUserHandler creates a handler that seeds presets for new users.
// A nil presets slice means the built-in catalogue.
func NewRegisterUserHandler(store ledger.Store, presets []ledger.QuestPreset, logger *slog.Logger) *RegisterUserHandler {
	if presets == nil {
		presets = ledger.DefaultPresets()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterUserHandler{store: store, presets: presets, logger: logger}
}

// Handle returns the user for the account, creating it on first contact.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	user, created, err := h.store.EnsureUser(ctx, cmd.TelegramID, cmd.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	if created {
		if _, err := SeedQuests(ctx, h.store, user.ID, h.presets); err != nil {
			return nil, fmt.Errorf("register user: %w", err)
		}
		h.logger.Info("user registered",
			"user_id", user.ID,
			"telegram_id", cmd.TelegramID,
			"quests", len(h.presets),
		)
	}

	return &RegisterUserResult{User: user, Created: created}, nil
}

// SeedQuests upserts presets for a user by title and returns how many were written.
func SeedQuests(ctx context.Context, store ledger.Store, userID string, presets []ledger.QuestPreset) (int, error) {
	err := store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		for _, p := range presets {
			q := p
			q.ID = ""
			if err := tx.UpsertQuest(ctx, &q); err != nil {
				return fmt.Errorf("seed quest %q: %w", p.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(presets), nil
}
