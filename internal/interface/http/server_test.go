package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/telegram"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/sqlite"
)

const token = "dashboard-token"

type sinkFunc func(ctx context.Context, u *telegram.Update) error

func (f sinkFunc) HandleUpdate(ctx context.Context, u *telegram.Update) error { return f(ctx, u) }

type apiEnv struct {
	handler http.Handler
	userID  string
}

func newAPIEnv(t *testing.T, config Config, sink sinkFunc) *apiEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg, err := command.NewRegisterUserHandler(store, nil, nil).Handle(ctx, command.RegisterUserCommand{TelegramID: 5, DisplayName: "Lin"})
	require.NoError(t, err)

	if config.TokenHash == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
		require.NoError(t, err)
		config.TokenHash = string(hash)
	}

	deps := Dependencies{
		API: NewAPI(
			query.NewGetDashboardHandler(store, query.GetDashboardHandlerConfig{}),
			command.NewToggleQuestHandler(store, command.ToggleQuestHandlerConfig{}),
			command.NewDeleteActivityHandler(store, nil, nil),
			command.NewAddictionHandler(store, command.AddictionHandlerConfig{}),
			nil,
		),
	}
	if sink != nil {
		deps.Webhook = sink
	}

	srv, err := NewServer(config, deps)
	require.NoError(t, err)
	return &apiEnv{handler: srv.Handler(), userID: reg.User.ID}
}

func (e *apiEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestServer_Health(t *testing.T) {
	e := newAPIEnv(t, Config{}, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServer_RequiresToken(t *testing.T) {
	e := newAPIEnv(t, Config{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/"+e.userID+"/dashboard", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := NewServer(Config{TokenHash: "not-bcrypt"}, Dependencies{API: &API{}})
	assert.Error(t, err)

	srv, err := NewServer(Config{}, Dependencies{API: &API{}})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Dashboard(t *testing.T) {
	e := newAPIEnv(t, Config{}, nil)

	rec, body := e.do(t, http.MethodGet, "/api/v1/users/"+e.userID+"/dashboard?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lin", body["display_name"])
	assert.Len(t, body["pillars"], 4)
	assert.Len(t, body["quests"], 11)

	rec, _ = e.do(t, http.MethodGet, "/api/v1/users/"+e.userID+"/dashboard?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = e.do(t, http.MethodGet, "/api/v1/users/ghost/dashboard", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestAPI_ToggleAndDelete(t *testing.T) {
	e := newAPIEnv(t, Config{}, nil)
	base := "/api/v1/users/" + e.userID

	rec, _ := e.do(t, http.MethodPost, base+"/quests/Train/toggle", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := e.do(t, http.MethodPost, base+"/quests/Train/toggle", `{"completed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["outcome"])
	change := body["change"].(map[string]any)
	assert.EqualValues(t, 50, change["delta"])

	rec, _ = e.do(t, http.MethodPost, base+"/quests/Juggle/toggle", `{"completed":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, dash := e.do(t, http.MethodGet, base+"/dashboard", "")
	recent := dash["recent"].([]any)
	require.Len(t, recent, 1)
	logID := recent[0].(map[string]any)["id"].(string)

	rec, body = e.do(t, http.MethodDelete, base+"/activities/"+logID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, logID, body["deleted"])
	assert.EqualValues(t, -50, body["change"].(map[string]any)["delta"])

	rec, _ = e.do(t, http.MethodDelete, base+"/activities/"+logID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Trackers(t *testing.T) {
	e := newAPIEnv(t, Config{}, nil)
	base := "/api/v1/users/" + e.userID

	rec, body := e.do(t, http.MethodPost, base+"/trackers", `{"name":"Sugar"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "started", body["outcome"])
	trackerID := body["tracker"].(map[string]any)["id"].(string)

	rec, body = e.do(t, http.MethodPost, base+"/trackers", `{"name":"sugar"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_tracked", body["outcome"])

	rec, body = e.do(t, http.MethodPost, base+"/trackers/Sugar/relapse", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relapsed", body["outcome"])

	rec, body = e.do(t, http.MethodPost, base+"/trackers/Coffee/relapse", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_tracked", body["outcome"])

	rec, _ = e.do(t, http.MethodPost, base+"/trackers", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodDelete, base+"/trackers/"+trackerID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = e.do(t, http.MethodDelete, base+"/trackers/"+trackerID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_WebhookAndRateLimit(t *testing.T) {
	var got []int64
	e := newAPIEnv(t, Config{WebhookSecret: "s", RateLimitPerMinute: 6}, func(_ context.Context, u *telegram.Update) error {
		got = append(got, u.UpdateID)
		return nil
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":9}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{9}, got)

	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
