package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

// The store tests below need a disposable database.
func openTestStore(t *testing.T) (*LedgerStore, *Connection) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := Connect(ctx, url, DefaultPoolOptions())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	return NewLedgerStore(conn), conn
}

func createUser(t *testing.T, store *LedgerStore, conn *Connection) *ledger.User {
	t.Helper()
	ctx := context.Background()
	user, created, err := store.EnsureUser(ctx, time.Now().UnixNano(), "Ada")
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() {
		_, _ = conn.Pool().Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func TestPostgres_EnsureUserAndLookups(t *testing.T) {
	store, conn := openTestStore(t)
	ctx := context.Background()
	user := createUser(t, store, conn)

	again, created, err := store.EnsureUser(ctx, user.TelegramID, "Other")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	stats, err := store.GetStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, progression.NewStats(), stats)

	_, err = store.GetUser(ctx, "not-a-uuid")
	assert.True(t, shared.IsNotFound(err))
	assert.ErrorIs(t, store.WithinUser(ctx, "not-a-uuid", func(context.Context, ledger.Tx) error { return nil }), shared.ErrUserNotFound)
}

func TestPostgres_WithinUserRollsBack(t *testing.T) {
	store, conn := openTestStore(t)
	ctx := context.Background()
	user := createUser(t, store, conn)
	boom := errors.New("boom")

	err := store.WithinUser(ctx, user.ID, func(ctx context.Context, tx ledger.Tx) error {
		stats, _, err := progression.ApplyDelta(tx.Stats(), progression.PillarCareer, 120)
		require.NoError(t, err)
		require.NoError(t, tx.SaveStats(ctx, stats))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stats, err := store.GetStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Career.Level)
}

func TestPostgres_ConcurrentDeltasSerialize(t *testing.T) {
	store, conn := openTestStore(t)
	ctx := context.Background()
	user := createUser(t, store, conn)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinUser(ctx, user.ID, func(ctx context.Context, tx ledger.Tx) error {
				stats, _, err := progression.ApplyDelta(tx.Stats(), progression.PillarPhysical, 30)
				if err != nil {
					return err
				}
				return tx.SaveStats(ctx, stats)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := store.GetStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*30, progression.TotalXP(stats.Physical))
}

func TestPostgres_LogsCyclesAndMarkers(t *testing.T) {
	store, conn := openTestStore(t)
	ctx := context.Background()
	user := createUser(t, store, conn)
	start := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	err := store.WithinUser(ctx, user.ID, func(ctx context.Context, tx ledger.Tx) error {
		spend := ledger.NewActivityLog(user.ID, ledger.LogFinancial, progression.PillarCareer, 10, "rent", start)
		spend.Amount = decimal.RequireFromString("-850.00")
		require.NoError(t, tx.AppendLog(ctx, spend))
		require.NoError(t, tx.AppendLog(ctx, ledger.NewActivityLog(user.ID, ledger.LogCycle, progression.PillarCareer, 15, "deep work", start)))

		open, err := tx.LatestOpenCycle(ctx)
		require.NoError(t, err)
		require.NotNil(t, open)
		require.NoError(t, tx.CloseCycle(ctx, open.ID, start.Add(3*time.Hour), 100))

		first, err := tx.MarkRolledUp(ctx, "2026-05-10")
		require.NoError(t, err)
		assert.True(t, first)
		second, err := tx.MarkRolledUp(ctx, "2026-05-10")
		require.NoError(t, err)
		assert.False(t, second)
		return nil
	})
	require.NoError(t, err)

	fin, err := store.ListLogs(ctx, user.ID, ledger.LogFilter{Kind: ledger.LogFinancial})
	require.NoError(t, err)
	require.Len(t, fin, 1)
	assert.True(t, fin[0].Amount.Equal(decimal.RequireFromString("-850")))

	cycles, err := store.ListLogs(ctx, user.ID, ledger.LogFilter{Kind: ledger.LogCycle})
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.False(t, cycles[0].IsOpen())
	assert.Equal(t, 100, cycles[0].XP)
}
