// Package command contains write operations (CQRS - Commands).
// Every command mutates one user's state through ledger.Store.WithinUser.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

// Outcome names the result of a command that can succeed without mutating
// anything (duplicates, missing references).
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
	OutcomeNoActiveCycle Outcome = "no_active_cycle"

	OutcomeCompleted    Outcome = "completed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUncompleted  Outcome = "uncompleted"
	OutcomeNotCompleted Outcome = "not_completed"

	OutcomeStarted        Outcome = "started"
	OutcomeAlreadyTracked Outcome = "already_tracked"
	OutcomeRelapsed       Outcome = "relapsed"
	OutcomeNotTracked     Outcome = "not_tracked"

	OutcomeRolledUp        Outcome = "rolled_up"
	OutcomeAlreadyRolledUp Outcome = "already_rolled_up"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// CacheInvalidator drops cached read models of a user after a write.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Notifier delivers a text message to a user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, text string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// rulesOrDefault treats a zero Rules value as "use the defaults".
func rulesOrDefault(r event.Rules) event.Rules {
	if !r.AddictionPillar.IsValid() {
		return event.DefaultRules()
	}
	return r
}

// invalidate is best effort: a stale dashboard expires on its own.
func invalidate(ctx context.Context, cache CacheInvalidator, logger *slog.Logger, userID string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateUser(ctx, userID); err != nil {
		logger.Warn("failed to invalidate dashboard cache",
			"user_id", userID,
			"error", err,
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPLY FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// FormatChange renders the XP suffix of a reply, e.g. "(+10 XP PHYSICAL)",
// followed by a level line when the pillar crossed a level boundary.
// A zero change renders as an empty string.
func FormatChange(c progression.Change) string {
	if c.Delta == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(%+d XP %s)", c.Delta, c.Pillar)
	if c.LeveledUp {
		fmt.Fprintf(&b, "\n⬆️ %s level %d", c.Pillar, c.Level)
	}
	if c.LeveledDown {
		fmt.Fprintf(&b, "\n⬇️ %s level %d", c.Pillar, c.Level)
	}
	return b.String()
}

// withSuffix joins a reply text and its XP suffix.
func withSuffix(text string, c progression.Change) string {
	suffix := FormatChange(c)
	text = strings.TrimSpace(text)
	switch {
	case suffix == "":
		return text
	case text == "":
		return suffix
	default:
		return text + " " + suffix
	}
}
