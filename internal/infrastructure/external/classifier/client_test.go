package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/event"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		URL:              srv.URL,
		APIKey:           "sk-test",
		MaxRetries:       3,
		RetryBaseDelay:   time.Millisecond,
		BreakerThreshold: 2,
		BreakerTimeout:   time.Minute,
	})
}

func TestClassify(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "slept 8 hours and did 30 push-ups", req.Messages[1].Content)
		}

		_, _ = w.Write([]byte(completion("```json\n" +
			`{"events":[{"type":"sleep","hours":8,"reply":"Great rest"},{"type":"reps","reps":30},{"type":"bogus"}]}` +
			"\n```")))
	})

	res, err := c.Classify(context.Background(), "slept 8 hours and did 30 push-ups")
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, event.KindSleep, res.Events[0].Kind)
	assert.Equal(t, "Great rest", res.Events[0].Reply)
	assert.Equal(t, 30, res.Events[1].Reps)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 2, res.Skipped[0].Index)
}

func TestClassify_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completion(`{"events":[{"type":"idea","description":"garden robot"}]}`)))
	})

	res, err := c.Classify(context.Background(), "idea: garden robot")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, res.Events, 1)
	assert.Equal(t, event.KindIdea, res.Events[0].Kind)
}

func TestClassify_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	})

	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassify_GarbageAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion("I could not understand that, sorry.")))
	})

	for i := 0; i < 3; i++ {
		_, err := c.Classify(context.Background(), "???")
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidFormat)
	}
	// Bad answers do not trip the breaker.
	assert.Equal(t, stateClosed, c.breaker.current())
	assert.NoError(t, c.Check(context.Background()))
}

func TestClassify_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := c.Classify(context.Background(), "x")
		require.Error(t, err)
	}
	before := calls.Load()

	_, err := c.Classify(context.Background(), "x")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, before, calls.Load())
	assert.ErrorIs(t, c.Check(context.Background()), shared.ErrClassifierUnavailable)
}
