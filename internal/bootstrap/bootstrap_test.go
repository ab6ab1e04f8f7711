package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/config"
	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/application/query"
)

type spyNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *spyNotifier) NotifyUser(_ context.Context, userID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("APP_ENV", "development")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "boot.db"))

	cfg, err := config.LoadOffline()
	require.NoError(t, err)
	return cfg
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestOpenStoreAndServices(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	store, err := OpenStore(ctx, cfg.Database, true, log)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	assert.Equal(t, "sqlite", store.Kind)
	require.NoError(t, store.Ping(ctx))

	cache, err := OpenRedis(ctx, &config.Config{Redis: config.RedisConfig{Disabled: true}}, log)
	require.NoError(t, err)
	assert.Nil(t, cache)

	notifier := &spyNotifier{}
	svc := NewServices(store, cfg, ServiceOptions{Notifier: notifier}, log)

	a, err := svc.Register.Handle(ctx, command.RegisterUserCommand{TelegramID: 1, DisplayName: "A"})
	require.NoError(t, err)
	b, err := svc.Register.Handle(ctx, command.RegisterUserCommand{TelegramID: 2, DisplayName: "B"})
	require.NoError(t, err)

	cfg.Features.SetUserOverride(b.User.ID, config.FeatureRollupReport, false)

	for _, id := range []string{a.User.ID, b.User.ID} {
		res, err := svc.Rollup.Handle(ctx, command.RollupDayCommand{UserID: id})
		require.NoError(t, err)
		assert.Equal(t, command.OutcomeRolledUp, res.Outcome)
	}
	assert.Equal(t, []string{a.User.ID}, notifier.users)

	d, err := svc.Dashboard.Handle(ctx, query.GetDashboardQuery{UserID: a.User.ID})
	require.NoError(t, err)
	assert.Equal(t, "A", d.DisplayName)
}
