package command

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/infrastructure/persistence/sqlite"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

// t0 is a Tuesday morning in UTC.
var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store  *sqlite.Store
	userID string
	clock  *timeutil.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "lifeos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	res, err := NewRegisterUserHandler(store, nil, nil).Handle(ctx, RegisterUserCommand{TelegramID: 7, DisplayName: "Ada"})
	require.NoError(t, err)
	require.True(t, res.Created)

	return &fixture{store: store, userID: res.User.ID, clock: timeutil.NewManualClock(t0)}
}

func (f *fixture) stats(t *testing.T) progression.Stats {
	t.Helper()
	stats, err := f.store.GetStats(context.Background(), f.userID)
	require.NoError(t, err)
	return stats
}

func (f *fixture) setStats(t *testing.T, stats progression.Stats) {
	t.Helper()
	err := f.store.WithinUser(context.Background(), f.userID, func(ctx context.Context, tx ledger.Tx) error {
		return tx.SaveStats(ctx, stats)
	})
	require.NoError(t, err)
}

func (f *fixture) logs(t *testing.T) []*ledger.ActivityLog {
	t.Helper()
	logs, err := f.store.ListLogs(context.Background(), f.userID, ledger.LogFilter{})
	require.NoError(t, err)
	return logs
}

func totalXP(t *testing.T, stats progression.Stats, p progression.Pillar) int {
	t.Helper()
	cur, err := stats.Get(p)
	require.NoError(t, err)
	return progression.TotalXP(cur)
}

// spyCache counts invalidations.
type spyCache struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (c *spyCache) InvalidateUser(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	return c.err
}

func (c *spyCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

// faultyStore fails AppendLog for one log kind.
type faultyStore struct {
	*sqlite.Store
	failKind ledger.LogKind
}

func (s *faultyStore) WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.Store.WithinUser(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, failKind: s.failKind})
	})
}

type faultyTx struct {
	ledger.Tx
	failKind ledger.LogKind
}

var errDiskFull = errors.New("disk full")

func (t *faultyTx) AppendLog(ctx context.Context, log *ledger.ActivityLog) error {
	if log.Kind == t.failKind {
		return errDiskFull
	}
	return t.Tx.AppendLog(ctx, log)
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "", FormatChange(progression.Change{}))

	assert.Equal(t, "(+10 XP COGNITION)", FormatChange(progression.Change{
		Pillar: progression.PillarCognition, Delta: 10, Level: 1, LevelBefore: 1,
	}))

	assert.Equal(t, "(+100 XP PHYSICAL)\n⬆️ PHYSICAL level 2", FormatChange(progression.Change{
		Pillar: progression.PillarPhysical, Delta: 100, Level: 2, LevelBefore: 1, LeveledUp: true,
	}))

	assert.Equal(t, "(-25 XP CAREER)\n⬇️ CAREER level 1", FormatChange(progression.Change{
		Pillar: progression.PillarCareer, Delta: -25, Level: 1, LevelBefore: 2, LeveledDown: true,
	}))
}

func TestWithinUser_ConcurrentDeltasSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.store.WithinUser(ctx, f.userID, func(ctx context.Context, tx ledger.Tx) error {
				stats, _, err := progression.ApplyDelta(tx.Stats(), progression.PillarCareer, 7)
				if err != nil {
					return err
				}
				return tx.SaveStats(ctx, stats)
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, workers*7, totalXP(t, f.stats(t), progression.PillarCareer))
}

func TestRegisterUser_SeedsQuestsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quests, err := f.store.ListQuests(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, quests, 11)

	res, err := NewRegisterUserHandler(f.store, nil, nil).Handle(ctx, RegisterUserCommand{TelegramID: 7})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, f.userID, res.User.ID)

	quests, err = f.store.ListQuests(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, quests, 11)
}

func TestResetProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := NewToggleQuestHandler(f.store, ToggleQuestHandlerConfig{Clock: f.clock}).
		Handle(ctx, ToggleQuestCommand{UserID: f.userID, Quest: "Deep coding 2h", Completed: true})
	require.NoError(t, err)
	require.Len(t, f.logs(t), 1)

	res, err := ResetProgress(ctx, f.store, f.userID, true, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.LogsDeleted)
	assert.Equal(t, 2, res.Before.Cognition.Level)

	assert.Equal(t, progression.NewStats(), f.stats(t))
	assert.Empty(t, f.logs(t))

	quests, err := f.store.ListQuests(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, quests, 11)
}
