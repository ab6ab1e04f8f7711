package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	telegram_id  INTEGER NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pillar_stats (
	user_id          TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	career_xp        INTEGER NOT NULL DEFAULT 0 CHECK (career_xp >= 0),
	career_level     INTEGER NOT NULL DEFAULT 1 CHECK (career_level >= 1),
	career_streak    INTEGER NOT NULL DEFAULT 0 CHECK (career_streak >= 0),
	cognition_xp     INTEGER NOT NULL DEFAULT 0 CHECK (cognition_xp >= 0),
	cognition_level  INTEGER NOT NULL DEFAULT 1 CHECK (cognition_level >= 1),
	cognition_streak INTEGER NOT NULL DEFAULT 0 CHECK (cognition_streak >= 0),
	physical_xp      INTEGER NOT NULL DEFAULT 0 CHECK (physical_xp >= 0),
	physical_level   INTEGER NOT NULL DEFAULT 1 CHECK (physical_level >= 1),
	physical_streak  INTEGER NOT NULL DEFAULT 0 CHECK (physical_streak >= 0),
	social_xp        INTEGER NOT NULL DEFAULT 0 CHECK (social_xp >= 0),
	social_level     INTEGER NOT NULL DEFAULT 1 CHECK (social_level >= 1),
	social_streak    INTEGER NOT NULL DEFAULT 0 CHECK (social_streak >= 0),
	updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	pillar      TEXT NOT NULL,
	xp          INTEGER NOT NULL DEFAULT 0,
	title       TEXT NOT NULL DEFAULT '',
	title_key   TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	quantity    REAL NOT NULL DEFAULT 0,
	amount      TEXT NOT NULL DEFAULT '0',
	energy      INTEGER NOT NULL DEFAULT 0,
	focus       INTEGER NOT NULL DEFAULT 0,
	occurred_at INTEGER NOT NULL,
	ended_at    INTEGER
);

CREATE INDEX IF NOT EXISTS idx_activity_logs_user_time ON activity_logs(user_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_activity_logs_open_cycles ON activity_logs(user_id, occurred_at) WHERE kind = 'cycle' AND ended_at IS NULL;

CREATE TABLE IF NOT EXISTS quest_presets (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	pillar    TEXT NOT NULL,
	title     TEXT NOT NULL,
	title_key TEXT NOT NULL,
	xp        INTEGER NOT NULL CHECK (xp > 0),
	UNIQUE (user_id, title_key)
);

CREATE TABLE IF NOT EXISTS addiction_trackers (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	name_key        TEXT NOT NULL,
	started_at      INTEGER NOT NULL,
	last_relapse_at INTEGER NOT NULL,
	relapse_count   INTEGER NOT NULL DEFAULT 0,
	record_hours    REAL NOT NULL DEFAULT 0,
	UNIQUE (user_id, name_key)
);

CREATE TABLE IF NOT EXISTS rollup_markers (
	user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	day       TEXT NOT NULL,
	rolled_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, day)
);
`

func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	})
}
