package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE QUEST COMMAND
// A quest is completed for a day exactly when a habit log with its title
// exists inside that day. The log is the state; there is no separate flag.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleQuestCommand completes or un-completes a daily quest.
type ToggleQuestCommand struct {
	UserID string

	// Quest is the preset ID or its title (case-insensitive).
	Quest string

	// Completed is the desired state.
	Completed bool

	// At selects the day (defaults to now if zero).
	At time.Time
}

// Validate validates the command.
func (c ToggleQuestCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("quest", "Toggle", shared.ErrInvalidID, "user_id is required")
	}
	if strings.TrimSpace(c.Quest) == "" {
		return shared.NewDomainError("quest", "Toggle", shared.ErrEmptyValue, "quest is required")
	}
	return nil
}

// ToggleQuestResult contains the result of a toggle.
type ToggleQuestResult struct {
	Outcome Outcome
	Quest   *ledger.QuestPreset
	Change  progression.Change
	Day     string
}

// Message renders the result for the chat reply.
func (r ToggleQuestResult) Message() string {
	switch r.Outcome {
	case OutcomeCompleted:
		return withSuffix(fmt.Sprintf("✅ %s done.", r.Quest.Title), r.Change)
	case OutcomeDuplicate:
		return fmt.Sprintf("%s is already done today.", r.Quest.Title)
	case OutcomeUncompleted:
		return withSuffix(fmt.Sprintf("↩️ %s undone.", r.Quest.Title), r.Change)
	case OutcomeNotCompleted:
		return fmt.Sprintf("%s was not done today.", r.Quest.Title)
	}
	return ""
}

// ToggleQuestHandlerConfig contains configuration for the handler.
type ToggleQuestHandlerConfig struct {
	// Location defines calendar days (default UTC).
	Location *time.Location
	Clock    Clock
	Cache    CacheInvalidator
	Logger   *slog.Logger
}

// ToggleQuestHandler handles the ToggleQuestCommand.
type ToggleQuestHandler struct {
	store  ledger.Store
	loc    *time.Location
	clock  Clock
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewToggleQuestHandler creates a new ToggleQuestHandler.
func NewToggleQuestHandler(store ledger.Store, config ToggleQuestHandlerConfig) *ToggleQuestHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &ToggleQuestHandler{
		store:  store,
		loc:    config.Location,
		clock:  config.Clock,
		cache:  config.Cache,
		logger: config.Logger,
	}
}

// Handle executes the toggle.
func (h *ToggleQuestHandler) Handle(ctx context.Context, cmd ToggleQuestCommand) (*ToggleQuestResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	at := cmd.At
	if at.IsZero() {
		at = h.clock.Now()
	}
	from, to := timeutil.DayBounds(at, h.loc)
	result := &ToggleQuestResult{Day: timeutil.DayKey(at, h.loc)}

	err := h.store.WithinUser(ctx, cmd.UserID, func(ctx context.Context, tx ledger.Tx) error {
		quest, err := tx.FindQuest(ctx, cmd.Quest)
		if err != nil {
			return err
		}
		if quest == nil {
			return shared.ErrQuestNotFound
		}
		result.Quest = quest

		existing, err := tx.FindHabitLog(ctx, quest.Title, from, to)
		if err != nil {
			return err
		}

		if cmd.Completed {
			if existing != nil {
				result.Outcome = OutcomeDuplicate
				return nil
			}
			log := ledger.NewActivityLog(tx.UserID(), ledger.LogHabit, quest.Pillar, quest.XP, quest.Title, at)
			if err := tx.AppendLog(ctx, log); err != nil {
				return err
			}
			return h.applyXP(ctx, tx, result, OutcomeCompleted, quest.Pillar, quest.XP)
		}

		if existing == nil {
			result.Outcome = OutcomeNotCompleted
			return nil
		}
		if err := tx.DeleteLog(ctx, existing.ID); err != nil {
			return err
		}
		// Reverse what the log was worth, not the preset's current value.
		return h.applyXP(ctx, tx, result, OutcomeUncompleted, existing.Pillar, -existing.XP)
	})
	if err != nil {
		return nil, fmt.Errorf("toggle quest: %w", err)
	}

	if result.Outcome == OutcomeCompleted || result.Outcome == OutcomeUncompleted {
		invalidate(ctx, h.cache, h.logger, cmd.UserID)
		h.logger.Info("quest toggled",
			"user_id", cmd.UserID,
			"quest", result.Quest.Title,
			"outcome", result.Outcome,
			"day", result.Day,
		)
	}
	return result, nil
}

func (h *ToggleQuestHandler) applyXP(ctx context.Context, tx ledger.Tx, result *ToggleQuestResult, outcome Outcome, pillar progression.Pillar, delta int) error {
	stats, change, err := progression.ApplyDelta(tx.Stats(), pillar, delta)
	if err != nil {
		return err
	}
	if err := tx.SaveStats(ctx, stats); err != nil {
		return err
	}
	result.Outcome = outcome
	result.Change = change
	return nil
}
