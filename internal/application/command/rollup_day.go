package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLL-UP DAY COMMAND
// Closes one calendar day for one user: streaks move, a day without
// physical activity costs XP on every pillar, and a report is sent.
// ══════════════════════════════════════════════════════════════════════════════

// RollupDayCommand selects the user and the day to close.
type RollupDayCommand struct {
	UserID string

	// Day is any instant inside the day to close (defaults to now if zero).
	Day time.Time
}

// RollupDayResult contains the result of a roll-up.
type RollupDayResult struct {
	Outcome  Outcome
	Day      string
	Activity progression.Activity

	// Streaks lists the pillars whose streak was updated, in display order.
	Streaks []progression.Pillar

	Penalized bool
	Changes   []progression.Change
	Stats     progression.Stats
	Report    string
}

// RollupDayHandlerConfig contains configuration for the handler.
type RollupDayHandlerConfig struct {
	Rules    event.Rules
	Location *time.Location
	Clock    Clock
	Notifier Notifier
	Cache    CacheInvalidator
	Logger   *slog.Logger
}

// RollupDayHandler handles the RollupDayCommand.
type RollupDayHandler struct {
	store    ledger.Store
	rules    event.Rules
	loc      *time.Location
	clock    Clock
	notifier Notifier
	cache    CacheInvalidator
	logger   *slog.Logger
}

// NewRollupDayHandler creates a new RollupDayHandler.
func NewRollupDayHandler(store ledger.Store, config RollupDayHandlerConfig) *RollupDayHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &RollupDayHandler{
		store:    store,
		rules:    rulesOrDefault(config.Rules),
		loc:      config.Location,
		clock:    config.Clock,
		notifier: config.Notifier,
		cache:    config.Cache,
		logger:   config.Logger,
	}
}

// Handle executes the roll-up. A day that was already closed returns
// OutcomeAlreadyRolledUp and changes nothing.
func (h *RollupDayHandler) Handle(ctx context.Context, cmd RollupDayCommand) (*RollupDayResult, error) {
	day := cmd.Day
	if day.IsZero() {
		day = h.clock.Now()
	}
	from, to := timeutil.DayBounds(day, h.loc)
	result := &RollupDayResult{Day: timeutil.DayKey(day, h.loc)}

	err := h.store.WithinUser(ctx, cmd.UserID, func(ctx context.Context, tx ledger.Tx) error {
		fresh, err := tx.MarkRolledUp(ctx, result.Day)
		if err != nil {
			return err
		}
		if !fresh {
			result.Outcome = OutcomeAlreadyRolledUp
			return nil
		}

		logs, err := tx.LogsBetween(ctx, from, to)
		if err != nil {
			return err
		}
		activity := DayActivity(logs)

		stats := tx.Stats()
		for _, p := range h.streakPillars() {
			cur, err := stats.Get(p)
			if err != nil {
				return err
			}
			cur.Streak = progression.NextStreak(cur.Streak, activity.Active(p))
			if stats, err = stats.Set(p, cur); err != nil {
				return err
			}
		}

		var changes []progression.Change
		penalized := !activity.Active(progression.PillarPhysical) && h.rules.PenaltyXP > 0
		if penalized {
			for _, p := range progression.AllPillars() {
				var change progression.Change
				stats, change, err = progression.ApplyDelta(stats, p, -h.rules.PenaltyXP)
				if err != nil {
					return err
				}
				changes = append(changes, change)
			}
		}

		if err := tx.SaveStats(ctx, stats); err != nil {
			return err
		}

		result.Outcome = OutcomeRolledUp
		result.Activity = activity
		result.Streaks = h.streakPillars()
		result.Penalized = penalized
		result.Changes = changes
		result.Stats = stats
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rollup %s: %w", result.Day, err)
	}

	if result.Outcome == OutcomeAlreadyRolledUp {
		h.logger.Debug("day already rolled up", "user_id", cmd.UserID, "day", result.Day)
		return result, nil
	}

	result.Report = h.report(result)
	invalidate(ctx, h.cache, h.logger, cmd.UserID)

	h.logger.Info("day rolled up",
		"user_id", cmd.UserID,
		"day", result.Day,
		"physical_active", result.Activity.Active(progression.PillarPhysical),
		"penalized", result.Penalized,
	)

	// The report is informational; state is already committed.
	if h.notifier != nil {
		if err := h.notifier.NotifyUser(ctx, cmd.UserID, result.Report); err != nil {
			h.logger.Warn("failed to deliver daily report",
				"user_id", cmd.UserID,
				"day", result.Day,
				"error", err,
			)
		}
	}

	return result, nil
}

func (h *RollupDayHandler) streakPillars() []progression.Pillar {
	pillars := []progression.Pillar{
		progression.PillarPhysical,
		progression.PillarCareer,
		progression.PillarCognition,
	}
	if h.rules.TrackSocialStreak {
		pillars = append(pillars, progression.PillarSocial)
	}
	return pillars
}

// DayActivity decides which pillars were worked on from one day's logs.
func DayActivity(logs []*ledger.ActivityLog) progression.Activity {
	a := progression.Activity{}
	for _, l := range logs {
		switch l.Kind {
		case ledger.LogCycle:
			a[l.Pillar] = true
			// Career work counts as thinking too.
			if l.Pillar == progression.PillarCareer {
				a[progression.PillarCognition] = true
			}
		case ledger.LogHabit:
			a[l.Pillar] = true
		case ledger.LogConsumption:
			if l.Pillar != progression.PillarPhysical {
				continue
			}
			if l.XP > 0 || l.Category == ledger.CategoryFast || l.Category == ledger.CategorySleep {
				a[progression.PillarPhysical] = true
			}
		case ledger.LogFinancial:
			a[progression.PillarCareer] = true
		case ledger.LogIdea:
			a[progression.PillarCognition] = true
		}

		if l.Pillar == progression.PillarSocial && l.XP > 0 {
			a[progression.PillarSocial] = true
		}
	}
	return a
}

// report renders the end-of-day message.
func (h *RollupDayHandler) report(r *RollupDayResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌙 Day closed (%s)\n\n", r.Day)

	for _, p := range r.Streaks {
		cur, _ := r.Stats.Get(p)
		switch {
		case r.Activity.Active(p):
			fmt.Fprintf(&b, "%s %s: done (streak %d)\n", p.Emoji(), p.Label(), cur.Streak)
		case p == progression.PillarPhysical:
			fmt.Fprintf(&b, "💀 %s missed: streak reset.\n", p.Label())
		default:
			fmt.Fprintf(&b, "%s %s: missed, streak reset.\n", p.Emoji(), p.Label())
		}
	}

	if r.Penalized {
		fmt.Fprintf(&b, "⚠️ Penalty: -%d XP on every pillar.\n", h.rules.PenaltyXP)
		for _, c := range r.Changes {
			if c.LeveledDown {
				fmt.Fprintf(&b, "⬇️ %s level %d\n", c.Pillar, c.Level)
			}
		}
		b.WriteString("\nTomorrow you win it back. Don't let up!")
	} else {
		b.WriteString("\nNo penalty today. Keep it going! 🚀")
	}
	return b.String()
}
