package handler

import (
	"context"
	"fmt"

	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/interface/telegram/presenter"
)

// Stats replies with the pillar overview.
func Stats(dashboard DashboardReader) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (string, error) {
		d, err := dashboard.Handle(ctx, query.GetDashboardQuery{UserID: req.UserID})
		if err != nil {
			return "", fmt.Errorf("stats: %w", err)
		}
		return presenter.Stats(d), nil
	})
}

// Quests replies with today's quest checklist.
func Quests(dashboard DashboardReader) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (string, error) {
		d, err := dashboard.Handle(ctx, query.GetDashboardQuery{UserID: req.UserID})
		if err != nil {
			return "", fmt.Errorf("quests: %w", err)
		}
		return presenter.Quests(d), nil
	})
}
