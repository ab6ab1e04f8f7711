package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS AND STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    telegram_id BIGINT NOT NULL UNIQUE,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- One row per user, locked FOR UPDATE by every unit of work.
CREATE TABLE IF NOT EXISTS pillar_stats (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    career_xp INTEGER NOT NULL DEFAULT 0,
    career_level INTEGER NOT NULL DEFAULT 1,
    career_streak INTEGER NOT NULL DEFAULT 0,
    cognition_xp INTEGER NOT NULL DEFAULT 0,
    cognition_level INTEGER NOT NULL DEFAULT 1,
    cognition_streak INTEGER NOT NULL DEFAULT 0,
    physical_xp INTEGER NOT NULL DEFAULT 0,
    physical_level INTEGER NOT NULL DEFAULT 1,
    physical_streak INTEGER NOT NULL DEFAULT 0,
    social_xp INTEGER NOT NULL DEFAULT 0,
    social_level INTEGER NOT NULL DEFAULT 1,
    social_streak INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (career_xp >= 0 AND cognition_xp >= 0 AND physical_xp >= 0 AND social_xp >= 0),
    CONSTRAINT valid_level CHECK (career_level >= 1 AND cognition_level >= 1 AND physical_level >= 1 AND social_level >= 1),
    CONSTRAINT valid_streak CHECK (career_streak >= 0 AND cognition_streak >= 0 AND physical_streak >= 0 AND social_streak >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS pillar_stats;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACTIVITY LOGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS activity_logs (
    id UUID PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    kind VARCHAR(20) NOT NULL,
    pillar VARCHAR(20) NOT NULL,
    xp INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL DEFAULT '',
    title_key TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    category VARCHAR(50) NOT NULL DEFAULT '',
    quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
    amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    energy SMALLINT NOT NULL DEFAULT 0,
    focus SMALLINT NOT NULL DEFAULT 0,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ended_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_kind CHECK (kind IN ('cycle', 'habit', 'consumption', 'mood', 'idea', 'social', 'financial', 'addiction', 'note')),
    CONSTRAINT valid_pillar CHECK (pillar IN ('CAREER', 'COGNITION', 'PHYSICAL', 'SOCIAL'))
);

CREATE INDEX IF NOT EXISTS idx_activity_logs_user_time ON activity_logs(user_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_logs_habit ON activity_logs(user_id, title_key, occurred_at) WHERE kind = 'habit';
CREATE INDEX IF NOT EXISTS idx_activity_logs_open_cycle ON activity_logs(user_id, occurred_at DESC) WHERE kind = 'cycle' AND ended_at IS NULL;
`

const migration002Down = `
DROP TABLE IF EXISTS activity_logs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: QUESTS, TRACKERS, ROLL-UP MARKERS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS quest_presets (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    pillar VARCHAR(20) NOT NULL,
    title TEXT NOT NULL,
    title_key TEXT NOT NULL,
    xp INTEGER NOT NULL,

    UNIQUE(user_id, title_key),
    CONSTRAINT valid_quest_xp CHECK (xp > 0)
);

CREATE TABLE IF NOT EXISTS addiction_trackers (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    last_relapse_at TIMESTAMP WITH TIME ZONE NOT NULL,
    relapse_count INTEGER NOT NULL DEFAULT 0,
    record_hours DOUBLE PRECISION NOT NULL DEFAULT 0,

    UNIQUE(user_id, name_key)
);

-- Presence of a row means the day was rolled up for that user.
CREATE TABLE IF NOT EXISTS rollup_markers (
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    day DATE NOT NULL,
    rolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, day)
);
`

const migration003Down = `
DROP TABLE IF EXISTS rollup_markers;
DROP TABLE IF EXISTS addiction_trackers;
DROP TABLE IF EXISTS quest_presets;
`

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users_and_stats", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_activity_logs", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_quests_trackers_rollups", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}
