package root

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/interface/http/handlers"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "lifeos.db"))
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func dashboard(t *testing.T, user string) *query.Dashboard {
	t.Helper()
	out, err := execute(t, "", "stats", "-u", user, "--json")
	require.NoError(t, err)
	var d query.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	return &d
}

func TestLifectl_Workflow(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "SQLite schema is up to date")

	out, err = execute(t, "", "register", "--telegram-id", "42", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user")

	out, err = execute(t, "", "register", "--telegram-id", "42", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	presets := filepath.Join(t.TempDir(), "quests.yaml")
	require.NoError(t, os.WriteFile(presets, []byte("quests:\n  - pillar: PHYSICAL\n    title: Stretch\n    xp: 10\n"), 0o600))
	out, err = execute(t, "", "seed-quests", "-u", "42", "--file", presets)
	require.NoError(t, err)
	assert.Contains(t, out, "1 quest(s) seeded for Ada")

	payload := `{"events":[{"type":"sleep","hours":8},{"type":"bogus"}]}`
	out, err = execute(t, payload, "replay", "-u", "42", "--at", "2026-05-04T08:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "item 1 skipped")
	assert.Contains(t, out, "applied")

	d := dashboard(t, "42")
	assert.Equal(t, "Ada", d.DisplayName)
	assert.Len(t, d.Quests, 12)
	physical, ok := d.Pillar(progression.PillarPhysical)
	require.True(t, ok)
	assert.Equal(t, 100, physical.TotalXP)
	require.Len(t, d.Recent, 1)

	out, err = execute(t, "", "stats", "-u", d.UserID)
	require.NoError(t, err)
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "Stretch")

	// Sleep counts as physical activity, so the day closes without penalty.
	out, err = execute(t, "", "rollup", "-u", "42", "--day", "2026-05-04")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled_up")
	assert.NotContains(t, out, "penalty applied")

	out, err = execute(t, "", "rollup", "-u", "42", "--day", "2026-05-04")
	require.NoError(t, err)
	assert.Contains(t, out, "already_rolled_up")

	out, err = execute(t, "", "rollup", "--day", "2026-05-05")
	require.NoError(t, err)
	assert.Contains(t, out, "Users: 1")
	assert.Contains(t, out, "Penalized: 1")

	_, err = execute(t, "", "reset", "-u", "42")
	assert.ErrorContains(t, err, "--yes")

	out, err = execute(t, "", "reset", "-u", "42", "--yes", "--wipe-logs")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada was reset")
	assert.Contains(t, out, "Logs deleted")

	d = dashboard(t, "42")
	for _, p := range d.Pillars {
		assert.Equal(t, 1, p.Level, p.Pillar)
		assert.Zero(t, p.TotalXP, p.Pillar)
	}
	assert.Empty(t, d.Recent)
	assert.Len(t, d.Quests, 12)
}

func TestLifectl_UserErrors(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "", "stats")
	assert.ErrorIs(t, err, errUserRequired)

	_, err = execute(t, "", "stats", "-u", "777")
	assert.ErrorContains(t, err, `no user "777"`)

	_, err = execute(t, "", "rollup", "--day", "May 4th")
	assert.ErrorContains(t, err, "--day")
}

func TestLifectl_HashToken(t *testing.T) {
	out, err := execute(t, "", "hash-token", "s3cret")
	require.NoError(t, err)

	auth, err := handlers.NewTokenAuth(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, auth.Valid("s3cret"))
	assert.False(t, auth.Valid("other"))

	out, err = execute(t, "from-stdin\n", "hash-token")
	require.NoError(t, err)
	auth, err = handlers.NewTokenAuth(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, auth.Valid("from-stdin"))

	_, err = execute(t, "", "hash-token")
	assert.ErrorContains(t, err, "empty")
}

func TestBar(t *testing.T) {
	cells := func(s string) (int, int) { return strings.Count(s, "█"), strings.Count(s, "░") }

	full, empty := cells(Bar(0.5, 10))
	assert.Equal(t, 5, full)
	assert.Equal(t, 5, empty)

	full, empty = cells(Bar(2, 4))
	assert.Equal(t, 4, full)
	assert.Zero(t, empty)

	full, empty = cells(Bar(-1, 4))
	assert.Zero(t, full)
	assert.Equal(t, 4, empty)
}
