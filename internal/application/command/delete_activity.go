package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

// DeleteActivityResult contains the removed log and the reversal applied.
type DeleteActivityResult struct {
	Log    *ledger.ActivityLog
	Change progression.Change
}

// DeleteActivityHandler removes a log and takes back the XP it awarded, in
// one unit of work. Deleting a tracker-start log does not delete the tracker.
type DeleteActivityHandler struct {
	store  ledger.Store
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewDeleteActivityHandler creates a new DeleteActivityHandler.
func NewDeleteActivityHandler(store ledger.Store, cache CacheInvalidator, logger *slog.Logger) *DeleteActivityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteActivityHandler{store: store, cache: cache, logger: logger}
}

// Handle deletes logID. Unknown logs return shared.ErrActivityNotFound.
func (h *DeleteActivityHandler) Handle(ctx context.Context, userID, logID string) (*DeleteActivityResult, error) {
	result := &DeleteActivityResult{}

	err := h.store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		log, err := tx.GetLog(ctx, logID)
		if err != nil {
			return err
		}
		if err := tx.DeleteLog(ctx, log.ID); err != nil {
			return err
		}
		result.Log = log

		if log.XP == 0 {
			return nil
		}
		stats, change, err := progression.ApplyDelta(tx.Stats(), log.Pillar, -log.XP)
		if err != nil {
			return err
		}
		if err := tx.SaveStats(ctx, stats); err != nil {
			return err
		}
		result.Change = change
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete activity: %w", err)
	}

	invalidate(ctx, h.cache, h.logger, userID)
	h.logger.Info("activity deleted",
		"user_id", userID,
		"log_id", logID,
		"kind", result.Log.Kind,
		"xp_reversed", result.Log.XP,
	)
	return result, nil
}
