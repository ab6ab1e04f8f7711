package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// Toggle checks a quest off (completed) or reverts it for today.
func Toggle(toggler QuestToggler, completed bool) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (string, error) {
		if req.Args == "" {
			if completed {
				return "Which quest? For example: /done Train", nil
			}
			return "Which quest? For example: /undo Train", nil
		}

		res, err := toggler.Handle(ctx, command.ToggleQuestCommand{
			UserID:    req.UserID,
			Quest:     req.Args,
			Completed: completed,
			At:        req.ReceivedAt,
		})
		if errors.Is(err, shared.ErrQuestNotFound) {
			return fmt.Sprintf("I don't know a quest called %q. /quests lists them.", req.Args), nil
		}
		if err != nil {
			return "", fmt.Errorf("toggle %q: %w", req.Args, err)
		}
		return res.Message(), nil
	})
}
