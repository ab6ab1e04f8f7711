package command

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

func dispatch(t *testing.T, h *DispatchEventsHandler, userID string, at time.Time, events ...event.Event) *DispatchEventsResult {
	t.Helper()
	res, err := h.Handle(context.Background(), DispatchEventsCommand{UserID: userID, Events: events, ReceivedAt: at})
	require.NoError(t, err)
	return res
}

func TestDispatch_RewardRules(t *testing.T) {
	cases := []struct {
		name   string
		ev     event.Event
		pillar progression.Pillar
		xp     int
		kind   ledger.LogKind
	}{
		{"long sleep", event.Event{Kind: event.KindSleep, Hours: 8}, progression.PillarPhysical, 100, ledger.LogConsumption},
		{"short sleep", event.Event{Kind: event.KindSleep, Hours: 7}, progression.PillarPhysical, 0, ledger.LogConsumption},
		{"long fast", event.Event{Kind: event.KindFast, Hours: 12}, progression.PillarPhysical, 120, ledger.LogConsumption},
		{"short fast", event.Event{Kind: event.KindFast, Hours: 11.5}, progression.PillarPhysical, 0, ledger.LogConsumption},
		{"reps", event.Event{Kind: event.KindReps, Reps: 30}, progression.PillarPhysical, 30, ledger.LogConsumption},
		{"mood", event.Event{Kind: event.KindMood, Energy: 4}, progression.PillarCognition, 10, ledger.LogMood},
		{"consumption", event.Event{Kind: event.KindConsumption, Name: "Salad"}, progression.PillarPhysical, 10, ledger.LogConsumption},
		{"idea ignores pillar", event.Event{Kind: event.KindIdea, Pillar: progression.PillarSocial}, progression.PillarCognition, 20, ledger.LogIdea},
		{"social ignores pillar", event.Event{Kind: event.KindSocial, Pillar: progression.PillarCareer}, progression.PillarSocial, 30, ledger.LogSocial},
		{"financial", event.Event{Kind: event.KindFinancial, Amount: decimal.NewFromInt(5), Flow: event.FlowIncome}, progression.PillarCareer, 10, ledger.LogFinancial},
		{"cycle start", event.Event{Kind: event.KindCycleStart, Name: "Deep work"}, progression.PillarCareer, 15, ledger.LogCycle},
		{"note", event.Event{Kind: event.KindNote, Description: "Rainy day"}, progression.PillarCognition, 0, ledger.LogNote},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{Clock: f.clock})

			res := dispatch(t, h, f.userID, t0, tc.ev)
			require.Len(t, res.Outcomes, 1)
			assert.Equal(t, OutcomeApplied, res.Outcomes[0].Outcome)
			assert.Equal(t, tc.xp, totalXP(t, f.stats(t), tc.pillar))

			logs := f.logs(t)
			require.Len(t, logs, 1)
			assert.Equal(t, tc.kind, logs[0].Kind)
			assert.Equal(t, tc.pillar, logs[0].Pillar)
			assert.Equal(t, tc.xp, logs[0].XP)
		})
	}
}

func TestDispatch_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	cache := &spyCache{}
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{Cache: cache})

	res := dispatch(t, h, f.userID, t0)
	assert.Empty(t, res.Replies)
	assert.Empty(t, res.Outcomes)
	assert.False(t, res.AllFailed())
	assert.Zero(t, cache.count())
	assert.Equal(t, progression.NewStats(), f.stats(t))
}

func TestDispatch_CycleEnd(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	dispatch(t, h, f.userID, t0, event.Event{Kind: event.KindCycleStart, Name: "Thesis"})
	res := dispatch(t, h, f.userID, t0.Add(3*time.Hour), event.Event{Kind: event.KindCycleEnd})

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeApplied, res.Outcomes[0].Outcome)
	assert.Equal(t, 15+100, totalXP(t, f.stats(t), progression.PillarCareer))
	assert.Contains(t, res.Reply(), "Closed \"Thesis\" after 3h")

	logs := f.logs(t)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].EndedAt)
	assert.Equal(t, 115, logs[0].XP)
	assert.Equal(t, 3*time.Hour, logs[0].Duration())
}

func TestDispatch_ShortCycle(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	dispatch(t, h, f.userID, t0, event.Event{Kind: event.KindCycleStart, Name: "Run", Pillar: progression.PillarPhysical})
	dispatch(t, h, f.userID, t0.Add(2*time.Hour), event.Event{Kind: event.KindCycleEnd})

	// Exactly two hours is not deep work.
	assert.Equal(t, 15+50, totalXP(t, f.stats(t), progression.PillarPhysical))
	assert.Zero(t, totalXP(t, f.stats(t), progression.PillarCareer))
}

func TestDispatch_CycleEndWithoutOpenCycle(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	res := dispatch(t, h, f.userID, t0, event.Event{Kind: event.KindCycleEnd, Reply: "Great job!"})

	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, OutcomeNoActiveCycle, res.Outcomes[0].Outcome)
	assert.Contains(t, res.Reply(), "nothing open to close")
	assert.NotContains(t, res.Reply(), "Great job!")
	assert.Equal(t, progression.NewStats(), f.stats(t))
	assert.Empty(t, f.logs(t))
}

func TestDispatch_ClosesLatestOpenCycle(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	dispatch(t, h, f.userID, t0, event.Event{Kind: event.KindCycleStart, Name: "Old"})
	dispatch(t, h, f.userID, t0.Add(time.Hour), event.Event{Kind: event.KindCycleStart, Name: "New"})
	res := dispatch(t, h, f.userID, t0.Add(90*time.Minute), event.Event{Kind: event.KindCycleEnd})

	assert.Contains(t, res.Reply(), "\"New\"")

	logs := f.logs(t)
	require.Len(t, logs, 2)
	assert.Equal(t, "New", logs[0].Title)
	assert.NotNil(t, logs[0].EndedAt)
	assert.True(t, logs[1].IsOpen())
}

func TestDispatch_ReplySuffix(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	res := dispatch(t, h, f.userID, t0,
		event.Event{Kind: event.KindMood, Reply: "Glad you feel good."},
		event.Event{Kind: event.KindSleep, Hours: 9},
		event.Event{Kind: event.KindNote, Reply: "Saved."},
	)

	require.Len(t, res.Replies, 3)
	assert.Equal(t, "Glad you feel good. (+10 XP COGNITION)", res.Replies[0])
	assert.Equal(t, "Sleep of 9.0 hours logged. (+100 XP PHYSICAL)\n⬆️ PHYSICAL level 2", res.Replies[1])
	assert.Equal(t, "Saved.", res.Replies[2])
	assert.Equal(t, res.Replies[0]+"\n\n"+res.Replies[1]+"\n\n"+res.Replies[2], res.Reply())
}

func TestDispatch_SkipsInvalidEvents(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	res := dispatch(t, h, f.userID, t0,
		event.Event{Kind: "dance"},
		event.Event{Kind: event.KindAddictionStart},
		event.Event{Kind: event.KindMood},
	)

	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, OutcomeSkipped, res.Outcomes[0].Outcome)
	assert.Error(t, res.Outcomes[0].Err)
	assert.Equal(t, OutcomeApplied, res.Outcomes[2].Outcome)
	assert.Len(t, res.Replies, 1)
	assert.False(t, res.AllFailed())
}

func TestDispatch_OutOfRangeNumbersLeaveStatsAlone(t *testing.T) {
	f := newFixture(t)
	start := progression.NewStats()
	start.Physical = progression.PillarProgress{XP: 500, Level: 10}
	f.setStats(t, start)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{Clock: f.clock})

	res := dispatch(t, h, f.userID, t0,
		event.Event{Kind: event.KindFast, Hours: 1e18},
		event.Event{Kind: event.KindReps, Reps: math.MaxInt},
		event.Event{Kind: event.KindSleep, Hours: math.NaN()},
	)

	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, start.Physical, f.stats(t).Physical)
	assert.Empty(t, f.logs(t))
}

func TestDispatch_FractionalAndStringNumbers(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{Clock: f.clock})

	decoded, err := event.Decode([]byte(`{"events":[
		{"type":"ayuno","horas":"13.5"},
		{"type":"ejercicio","reps":20.9}
	]}`))
	require.NoError(t, err)
	require.Len(t, decoded.Events, 2)

	res := dispatch(t, h, f.userID, t0, decoded.Events...)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 135+20, totalXP(t, f.stats(t), progression.PillarPhysical))
}

func TestDispatch_StoreFailureRollsBackOnlyThatEvent(t *testing.T) {
	f := newFixture(t)
	cache := &spyCache{}
	h := NewDispatchEventsHandler(&faultyStore{Store: f.store, failKind: ledger.LogIdea}, DispatchEventsHandlerConfig{Cache: cache})

	res := dispatch(t, h, f.userID, t0,
		event.Event{Kind: event.KindMood},
		event.Event{Kind: event.KindIdea, Description: "Solar kettle"},
		event.Event{Kind: event.KindSocial, Name: "Mum"},
	)

	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Replies, 3)
	assert.Equal(t, failureReply, res.Replies[1])
	assert.ErrorIs(t, res.Outcomes[1].Err, errDiskFull)

	stats := f.stats(t)
	assert.Equal(t, 10, totalXP(t, stats, progression.PillarCognition))
	assert.Equal(t, 30, totalXP(t, stats, progression.PillarSocial))
	assert.Len(t, f.logs(t), 2)
	assert.Equal(t, 1, cache.count())
}

func TestDispatch_AllFailed(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(&faultyStore{Store: f.store, failKind: ledger.LogMood}, DispatchEventsHandlerConfig{})

	res := dispatch(t, h, f.userID, t0, event.Event{Kind: event.KindMood}, event.Event{Kind: "?"})
	assert.True(t, res.AllFailed())
}

func TestDispatch_Financial(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{
		Rules: func() event.Rules { r := event.DefaultRules(); r.FinancialXP = 0; return r }(),
	})

	res := dispatch(t, h, f.userID, t0, event.Event{
		Kind:   event.KindFinancial,
		Amount: decimal.RequireFromString("12.50"),
		Flow:   event.FlowExpense,
		Name:   "Coffee beans",
	})

	assert.Equal(t, "Expense of 12.50 logged.", res.Reply())
	assert.Equal(t, progression.NewStats(), f.stats(t))

	logs := f.logs(t)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Amount.Equal(decimal.RequireFromString("-12.5")))
	assert.Equal(t, "Coffee beans", logs[0].Title)
}

func TestDispatch_AddictionEvents(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	res := dispatch(t, h, f.userID, t0,
		event.Event{Kind: event.KindAddictionStart, Name: "Sugar"},
		event.Event{Kind: event.KindAddictionStart, Name: "sugar"},
		event.Event{Kind: event.KindAddictionRelapse, Name: "Coffee", Reply: "Oops"},
	)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, OutcomeStarted, res.Outcomes[0].Outcome)
	assert.Equal(t, OutcomeAlreadyTracked, res.Outcomes[1].Outcome)
	assert.Equal(t, OutcomeNotTracked, res.Outcomes[2].Outcome)
	assert.Contains(t, res.Replies[2], "Start tracking it first")

	assert.Equal(t, 50, totalXP(t, f.stats(t), progression.PillarPhysical))
	assert.Len(t, f.logs(t), 1)
}

func TestDispatch_CancelledContext(t *testing.T) {
	f := newFixture(t)
	h := NewDispatchEventsHandler(f.store, DispatchEventsHandlerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Handle(ctx, DispatchEventsCommand{UserID: f.userID, Events: []event.Event{{Kind: event.KindMood}}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.logs(t))
}
