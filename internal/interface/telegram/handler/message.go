package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// Replies used when nothing could be saved.
const (
	RetryPrompt       = "⏱️ I could not save that right now. Please send the message again in a minute."
	NothingRecognized = "🤔 I could not find anything to log in that. Try something like \"slept 8 hours\"."
)

// Message classifies free text and applies the events it contains.
type Message struct {
	classifier Classifier
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewMessage creates the free-text handler.
func NewMessage(classifier Classifier, dispatcher Dispatcher, logger *slog.Logger) *Message {
	if logger == nil {
		logger = slog.Default()
	}
	return &Message{classifier: classifier, dispatcher: dispatcher, logger: logger}
}

// Handle implements Handler.
func (h *Message) Handle(ctx context.Context, req Request) (string, error) {
	decoded, err := h.classifier.Classify(ctx, req.Args)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		h.logger.Warn("classification failed", "user_id", req.UserID, "error", err)
		if errors.Is(err, shared.ErrInvalidFormat) {
			return NothingRecognized, nil
		}
		return RetryPrompt, nil
	}

	for _, s := range decoded.Skipped {
		h.logger.Warn("classifier item skipped", "user_id", req.UserID, "index", s.Index, "error", s.Err)
	}
	if len(decoded.Events) == 0 {
		return NothingRecognized, nil
	}

	res, err := h.dispatcher.Handle(ctx, command.DispatchEventsCommand{
		UserID:     req.UserID,
		Events:     decoded.Events,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		return "", fmt.Errorf("dispatch: %w", err)
	}
	if res.AllFailed() && res.Failed > 0 {
		return RetryPrompt, nil
	}

	reply := res.Reply()
	if reply == "" {
		return "👍 Logged.", nil
	}
	return reply, nil
}
