package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicMessage is sent to the user when handling their message panicked.
const PanicMessage = "😔 Something went wrong while handling that. Nothing was saved twice; please try again."

// Recovery turns handler panics into errors so one bad update cannot stop
// the bot.
type Recovery struct {
	logger *slog.Logger
}

// NewRecovery creates a Recovery.
func NewRecovery(logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{logger: logger}
}

// PanicError is returned by Run when fn panicked.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Run calls fn and recovers a panic into a *PanicError.
func (r *Recovery) Run(ctx context.Context, telegramID int64, what string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			stack := string(debug.Stack())
			r.logger.Error("panic recovered",
				"telegram_id", telegramID,
				"handler", what,
				"panic", fmt.Sprint(v),
				"stack", stack,
			)
			err = &PanicError{Value: v, Stack: stack}
		}
	}()
	return fn(ctx)
}
