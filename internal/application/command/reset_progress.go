package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

// ResetProgressResult reports what a reset removed.
type ResetProgressResult struct {
	LogsDeleted int64
	Before      progression.Stats
}

// ResetProgress returns a user to level 1 everywhere. With wipeLogs the
// activity history is removed too; quests and trackers are kept.
func ResetProgress(ctx context.Context, store ledger.Store, userID string, wipeLogs bool, logger *slog.Logger) (*ResetProgressResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	result := &ResetProgressResult{}
	err := store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		result.Before = tx.Stats()
		if wipeLogs {
			n, err := tx.DeleteAllLogs(ctx)
			if err != nil {
				return err
			}
			result.LogsDeleted = n
		}
		return tx.SaveStats(ctx, progression.NewStats())
	})
	if err != nil {
		return nil, fmt.Errorf("reset progress: %w", err)
	}

	logger.Warn("progress reset",
		"user_id", userID,
		"logs_deleted", result.LogsDeleted,
	)
	return result, nil
}
