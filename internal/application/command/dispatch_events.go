package command

import (
	"context"
	"errors"
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
// DISPATCH EVENTS COMMAND
// Turns the classified events of one message into log writes and XP changes.
// Each event is its own unit of work: a failure rolls back that event only.
// ══════════════════════════════════════════════════════════════════════════════

// DispatchEventsCommand contains the events of one inbound message.
type DispatchEventsCommand struct {
	// UserID is the internal ID of the user.
	UserID string

	// Events in the order the classifier returned them.
	Events []event.Event

	// ReceivedAt is when the message arrived (defaults to now if zero).
	ReceivedAt time.Time
}

// EventOutcome is the processing result of one event.
type EventOutcome struct {
	Index   int
	Kind    event.Kind
	Outcome Outcome
	Reply   string
	Change  progression.Change
	LogID   string
	Err     error
}

// DispatchEventsResult contains the result of a dispatch.
type DispatchEventsResult struct {
	// Outcomes has one entry per input event, in input order.
	Outcomes []EventOutcome

	// Replies are the non-empty reply fragments, in input order.
	Replies []string

	// Skipped counts events rejected before touching the store.
	Skipped int

	// Failed counts events whose unit of work was rolled back.
	Failed int
}

// Reply joins the fragments into one chat message.
func (r *DispatchEventsResult) Reply() string {
	return strings.Join(r.Replies, "\n\n")
}

// AllFailed reports whether nothing in a non-empty batch was applied.
func (r *DispatchEventsResult) AllFailed() bool {
	return len(r.Outcomes) > 0 && r.Failed+r.Skipped == len(r.Outcomes)
}

// failureReply is appended in place of an event whose write was rolled back.
const failureReply = "⚠️ I could not save this one. Please try again."

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DispatchEventsHandlerConfig contains configuration for the handler.
type DispatchEventsHandlerConfig struct {
	Rules  event.Rules
	Clock  Clock
	Cache  CacheInvalidator
	Logger *slog.Logger
}

// DispatchEventsHandler handles the DispatchEventsCommand.
type DispatchEventsHandler struct {
	store  ledger.Store
	rules  event.Rules
	clock  Clock
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewDispatchEventsHandler creates a new DispatchEventsHandler.
func NewDispatchEventsHandler(store ledger.Store, config DispatchEventsHandlerConfig) *DispatchEventsHandler {
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &DispatchEventsHandler{
		store:  store,
		rules:  rulesOrDefault(config.Rules),
		clock:  config.Clock,
		cache:  config.Cache,
		logger: config.Logger,
	}
}

// Handle executes the dispatch. It only returns an error when the context is
// cancelled; per-event problems are reported in the result.
func (h *DispatchEventsHandler) Handle(ctx context.Context, cmd DispatchEventsCommand) (*DispatchEventsResult, error) {
	result := &DispatchEventsResult{Outcomes: make([]EventOutcome, 0, len(cmd.Events))}
	if len(cmd.Events) == 0 {
		return result, nil
	}

	at := cmd.ReceivedAt
	if at.IsZero() {
		at = h.clock.Now()
	}

	mutated := false
	for i, ev := range cmd.Events {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		out := EventOutcome{Index: i, Kind: ev.Kind}

		if err := ev.Validate(); err != nil {
			out.Outcome = OutcomeSkipped
			out.Err = err
			result.Skipped++
			result.Outcomes = append(result.Outcomes, out)
			h.logger.Warn("skipping invalid event",
				"user_id", cmd.UserID,
				"event", ev.Kind,
				"index", i,
				"error", err,
			)
			continue
		}

		err := h.store.WithinUser(ctx, cmd.UserID, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			out, err = h.apply(ctx, tx, i, ev, at)
			return err
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return result, ctxErr
			}
			out = EventOutcome{Index: i, Kind: ev.Kind, Outcome: OutcomeFailed, Reply: failureReply, Err: err}
			result.Failed++
			h.logger.Error("failed to apply event",
				"user_id", cmd.UserID,
				"event", ev.Kind,
				"index", i,
				"error", err,
			)
		} else if out.LogID != "" {
			mutated = true
		}

		result.Outcomes = append(result.Outcomes, out)
		if out.Reply != "" {
			result.Replies = append(result.Replies, out.Reply)
		}
	}

	if mutated {
		invalidate(ctx, h.cache, h.logger, cmd.UserID)
	}

	h.logger.Info("events dispatched",
		"user_id", cmd.UserID,
		"events", len(cmd.Events),
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// apply runs one event inside its unit of work.
func (h *DispatchEventsHandler) apply(ctx context.Context, tx ledger.Tx, index int, ev event.Event, at time.Time) (EventOutcome, error) {
	out := EventOutcome{Index: index, Kind: ev.Kind, Outcome: OutcomeApplied}

	switch ev.Kind {
	case event.KindCycleEnd:
		return h.closeCycle(ctx, tx, out, ev, at)

	case event.KindAddictionStart:
		res, err := startTracking(ctx, tx, h.rules, ev.Name, at)
		if err != nil {
			return out, err
		}
		out.Outcome = res.Outcome
		out.Change = res.Change
		if res.Log != nil {
			out.LogID = res.Log.ID
		}
		out.Reply = withSuffix(replyText(ev, res.Message(ev.Name), res.Outcome == OutcomeStarted), res.Change)
		return out, nil

	case event.KindAddictionRelapse:
		res, err := recordRelapse(ctx, tx, h.rules, ev.Name, at)
		if err != nil {
			return out, err
		}
		out.Outcome = res.Outcome
		out.Change = res.Change
		if res.Log != nil {
			out.LogID = res.Log.ID
		}
		out.Reply = withSuffix(replyText(ev, res.Message(ev.Name), res.Outcome == OutcomeRelapsed), res.Change)
		return out, nil
	}

	pillar := h.rules.PillarFor(ev)
	xp := h.rules.Award(ev)

	log := newLogForEvent(tx.UserID(), ev, pillar, xp, at)
	if err := tx.AppendLog(ctx, log); err != nil {
		return out, err
	}
	out.LogID = log.ID

	if xp != 0 {
		stats, change, err := progression.ApplyDelta(tx.Stats(), pillar, xp)
		if err != nil {
			return out, err
		}
		if err := tx.SaveStats(ctx, stats); err != nil {
			return out, err
		}
		out.Change = change
	}

	out.Reply = withSuffix(replyText(ev, defaultReply(ev), true), out.Change)
	return out, nil
}

// closeCycle prices the most recent open cycle by its length.
func (h *DispatchEventsHandler) closeCycle(ctx context.Context, tx ledger.Tx, out EventOutcome, ev event.Event, at time.Time) (EventOutcome, error) {
	open, err := tx.LatestOpenCycle(ctx)
	if err != nil {
		return out, err
	}
	if open == nil {
		out.Outcome = OutcomeNoActiveCycle
		out.Reply = "There is nothing open to close. Start a task first."
		return out, nil
	}

	// A clock skew must not produce a negative duration.
	endedAt := at
	if endedAt.Before(open.OccurredAt) {
		endedAt = open.OccurredAt
	}
	elapsed := endedAt.Sub(open.OccurredAt)
	xp := h.rules.CycleEndXP(elapsed)

	// The log keeps the total awarded for the cycle so a deletion reverses all of it.
	if err := tx.CloseCycle(ctx, open.ID, endedAt, open.XP+xp); err != nil {
		return out, err
	}

	stats, change, err := progression.ApplyDelta(tx.Stats(), open.Pillar, xp)
	if err != nil {
		return out, err
	}
	if err := tx.SaveStats(ctx, stats); err != nil {
		return out, err
	}

	out.LogID = open.ID
	out.Change = change
	text := fmt.Sprintf("Closed %q after %s.", open.Title, timeutil.FormatDuration(elapsed))
	out.Reply = withSuffix(replyText(ev, text, true), change)
	return out, nil
}

// newLogForEvent maps an event to its ledger row.
func newLogForEvent(userID string, ev event.Event, pillar progression.Pillar, xp int, at time.Time) *ledger.ActivityLog {
	log := ledger.NewActivityLog(userID, ledger.LogNote, pillar, xp, ev.Summary(), at)
	log.Detail = strings.TrimSpace(ev.Description)
	log.Category = strings.TrimSpace(ev.Category)
	log.Energy = ev.Energy
	log.Focus = ev.Focus

	switch ev.Kind {
	case event.KindMood:
		log.Kind = ledger.LogMood
	case event.KindConsumption:
		log.Kind = ledger.LogConsumption
	case event.KindFast:
		log.Kind = ledger.LogConsumption
		log.Category = ledger.CategoryFast
		log.Quantity = ev.Hours
	case event.KindSleep:
		log.Kind = ledger.LogConsumption
		log.Category = ledger.CategorySleep
		log.Quantity = ev.Hours
	case event.KindReps:
		log.Kind = ledger.LogConsumption
		log.Category = ledger.CategoryExercise
		log.Quantity = float64(ev.Reps)
	case event.KindCycleStart:
		log.Kind = ledger.LogCycle
	case event.KindIdea:
		log.Kind = ledger.LogIdea
	case event.KindSocial:
		log.Kind = ledger.LogSocial
	case event.KindFinancial:
		log.Kind = ledger.LogFinancial
		log.Amount = ev.SignedAmount()
	}
	return log
}

// replyText prefers the classifier's own wording when the event was applied.
func replyText(ev event.Event, fallback string, applied bool) string {
	if applied && strings.TrimSpace(ev.Reply) != "" {
		return ev.Reply
	}
	return fallback
}

func defaultReply(ev event.Event) string {
	switch ev.Kind {
	case event.KindMood:
		return "Mood logged."
	case event.KindConsumption:
		return "Consumption logged."
	case event.KindFast:
		return fmt.Sprintf("Fast of %.1f hours logged.", ev.Hours)
	case event.KindSleep:
		return fmt.Sprintf("Sleep of %.1f hours logged.", ev.Hours)
	case event.KindReps:
		return fmt.Sprintf("%d reps logged.", ev.Reps)
	case event.KindCycleStart:
		return fmt.Sprintf("Started %q. Tell me when you finish.", ev.Summary())
	case event.KindIdea:
		return "Idea saved."
	case event.KindSocial:
		return "Social interaction logged."
	case event.KindFinancial:
		return fmt.Sprintf("%s of %s logged.", flowLabel(ev.Flow), ev.Amount.StringFixed(2))
	default:
		return "Noted."
	}
}

func flowLabel(flow string) string {
	if flow == event.FlowIncome {
		return "Income"
	}
	return "Expense"
}
