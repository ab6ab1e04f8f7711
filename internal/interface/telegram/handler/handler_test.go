package handler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/sqlite"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type stubClassifier struct {
	result event.DecodeResult
	err    error
	texts  []string
}

func (c *stubClassifier) Classify(_ context.Context, text string) (event.DecodeResult, error) {
	c.texts = append(c.texts, text)
	return c.result, c.err
}

type env struct {
	store  *sqlite.Store
	userID string
	req    Request
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	res, err := command.NewRegisterUserHandler(store, nil, nil).Handle(ctx, command.RegisterUserCommand{TelegramID: 7, DisplayName: "Ada"})
	require.NoError(t, err)

	return &env{
		store:  store,
		userID: res.User.ID,
		req: Request{
			UserID:      res.User.ID,
			TelegramID:  7,
			ChatID:      7,
			DisplayName: "Ada",
			ReceivedAt:  t0,
		},
	}
}

func TestStart(t *testing.T) {
	req := Request{DisplayName: "Ada", NewUser: true}
	reply, err := Start().Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, reply, "Hi Ada")
	assert.Contains(t, reply, "/quests")

	req.NewUser = false
	reply, err = Start().Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Welcome back, Ada! /stats shows where you stand.", reply)
}

func TestToggle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	toggler := command.NewToggleQuestHandler(e.store, command.ToggleQuestHandlerConfig{})
	done := Toggle(toggler, true)
	undo := Toggle(toggler, false)

	reply, err := done.Handle(ctx, e.req)
	require.NoError(t, err)
	assert.Contains(t, reply, "/done Train")

	req := e.req
	req.Args = "train"
	reply, err = done.Handle(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, reply, "✅ Train done.")

	reply, err = done.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Train is already done today.", reply)

	reply, err = undo.Handle(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, reply, "↩️ Train undone.")

	req.Args = "Juggle"
	reply, err = done.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, `I don't know a quest called "Juggle". /quests lists them.`, reply)
}

func TestStatsAndQuests(t *testing.T) {
	e := newEnv(t)
	dashboard := query.NewGetDashboardHandler(e.store, query.GetDashboardHandlerConfig{})

	reply, err := Stats(dashboard).Handle(context.Background(), e.req)
	require.NoError(t, err)
	assert.Contains(t, reply, "Ada")
	assert.Contains(t, reply, "💪 Physical")

	reply, err = Quests(dashboard).Handle(context.Background(), e.req)
	require.NoError(t, err)
	assert.Contains(t, reply, "⬜ Train")

	req := e.req
	req.UserID = "missing"
	_, err = Stats(dashboard).Handle(context.Background(), req)
	assert.True(t, shared.IsNotFound(err))
}

func TestMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	dispatcher := command.NewDispatchEventsHandler(e.store, command.DispatchEventsHandlerConfig{})

	t.Run("applies events", func(t *testing.T) {
		classifier := &stubClassifier{result: event.DecodeResult{Events: []event.Event{
			{Kind: event.KindSleep, Hours: 8, Reply: "Good night!"},
		}}}
		req := e.req
		req.Args = "slept 8 hours"

		reply, err := NewMessage(classifier, dispatcher, nil).Handle(ctx, req)
		require.NoError(t, err)
		assert.Contains(t, reply, "Good night!")
		assert.Equal(t, []string{"slept 8 hours"}, classifier.texts)
	})

	t.Run("nothing recognized", func(t *testing.T) {
		classifier := &stubClassifier{result: event.DecodeResult{Skipped: []event.SkippedItem{{Index: 0, Err: errors.New("bad")}}}}
		reply, err := NewMessage(classifier, dispatcher, nil).Handle(ctx, e.req)
		require.NoError(t, err)
		assert.Equal(t, NothingRecognized, reply)
	})

	t.Run("garbage answer", func(t *testing.T) {
		classifier := &stubClassifier{err: shared.WrapError("classifier", "Classify", shared.ErrInvalidFormat, "bad json", errors.New("eof"))}
		reply, err := NewMessage(classifier, dispatcher, nil).Handle(ctx, e.req)
		require.NoError(t, err)
		assert.Equal(t, NothingRecognized, reply)
	})

	t.Run("classifier down", func(t *testing.T) {
		classifier := &stubClassifier{err: shared.WrapError("classifier", "Classify", shared.ErrServiceUnavailable, "circuit open", errors.New("open"))}
		reply, err := NewMessage(classifier, dispatcher, nil).Handle(ctx, e.req)
		require.NoError(t, err)
		assert.Equal(t, RetryPrompt, reply)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		classifier := &stubClassifier{err: context.Canceled}
		_, err := NewMessage(classifier, dispatcher, nil).Handle(cctx, e.req)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
