package ledger

import (
	"context"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

// Store is the persistence boundary of the engine.
// It is implemented by the infrastructure layer (Postgres, SQLite).
//
// All mutations of a user's state go through WithinUser, which runs fn in a
// single transaction that holds the user's stats row lock. Two units of work
// for the same user never interleave; units for different users run in
// parallel.
type Store interface {
	// WithinUser runs fn atomically for one user. If fn returns an error every
	// write made through tx is rolled back.
	// Returns shared.ErrUserNotFound when the user does not exist.
	WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error

	// EnsureUser returns the user for a Telegram account, creating it and its
	// stats row on first contact. created is true when the user is new.
	EnsureUser(ctx context.Context, telegramID int64, displayName string) (user *User, created bool, err error)

	// GetUser returns a user by ID.
	GetUser(ctx context.Context, userID string) (*User, error)

	// GetUserByTelegramID returns a user by Telegram account.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)

	// ListUserIDs returns every user ID, in creation order.
	ListUserIDs(ctx context.Context) ([]string, error)

	// Read side

	// GetStats returns a snapshot of the user's pillar stats.
	GetStats(ctx context.Context, userID string) (progression.Stats, error)

	// ListLogs returns logs matching the filter, newest first.
	ListLogs(ctx context.Context, userID string, filter LogFilter) ([]*ActivityLog, error)

	// ListQuests returns the user's quest presets ordered by pillar and title.
	ListQuests(ctx context.Context, userID string) ([]*QuestPreset, error)

	// ListTrackers returns the user's addiction trackers ordered by name.
	ListTrackers(ctx context.Context, userID string) ([]*AddictionTracker, error)
}

// Tx is one user's unit of work. It is only valid inside WithinUser.
type Tx interface {
	// UserID returns the user the unit of work is bound to.
	UserID() string

	// Stats returns the stats as loaded under the row lock, updated by SaveStats.
	Stats() progression.Stats

	// SaveStats persists the stats row.
	SaveStats(ctx context.Context, stats progression.Stats) error

	// Logs

	// AppendLog inserts a new activity log.
	AppendLog(ctx context.Context, log *ActivityLog) error

	// GetLog returns a log by ID. Returns shared.ErrActivityNotFound if missing.
	GetLog(ctx context.Context, logID string) (*ActivityLog, error)

	// DeleteLog hard-deletes a log. Returns shared.ErrActivityNotFound if missing.
	DeleteLog(ctx context.Context, logID string) error

	// LatestOpenCycle returns the most recently started open cycle, or nil.
	LatestOpenCycle(ctx context.Context) (*ActivityLog, error)

	// CloseCycle sets EndedAt and the awarded XP of an open cycle.
	CloseCycle(ctx context.Context, logID string, endedAt time.Time, xp int) error

	// FindHabitLog returns the habit log with the given title (case-insensitive)
	// whose timestamp falls within [from, to], or nil.
	FindHabitLog(ctx context.Context, title string, from, to time.Time) (*ActivityLog, error)

	// LogsBetween returns all logs with a timestamp within [from, to].
	LogsBetween(ctx context.Context, from, to time.Time) ([]*ActivityLog, error)

	// Quests

	// FindQuest returns a preset by ID or title (case-insensitive), or nil.
	FindQuest(ctx context.Context, idOrTitle string) (*QuestPreset, error)

	// UpsertQuest creates a preset or updates the one with the same title.
	UpsertQuest(ctx context.Context, quest *QuestPreset) error

	// Addiction trackers

	// FindTracker returns the tracker with the given name (case-insensitive), or nil.
	FindTracker(ctx context.Context, name string) (*AddictionTracker, error)

	// GetTracker returns a tracker by ID. Returns shared.ErrTrackerNotFound if missing.
	GetTracker(ctx context.Context, trackerID string) (*AddictionTracker, error)

	// SaveTracker inserts or updates a tracker.
	SaveTracker(ctx context.Context, tracker *AddictionTracker) error

	// DeleteTracker hard-deletes a tracker. Returns shared.ErrTrackerNotFound if missing.
	DeleteTracker(ctx context.Context, trackerID string) error

	// Roll-up

	// MarkRolledUp records that the day was rolled up. It returns false, and
	// writes nothing, when a marker for that day already exists.
	MarkRolledUp(ctx context.Context, day string) (bool, error)

	// DeleteAllLogs removes every activity log of the user and returns the count.
	DeleteAllLogs(ctx context.Context) (int64, error)
}

// LogFilter narrows ListLogs.
type LogFilter struct {
	From  time.Time // zero means unbounded
	To    time.Time // zero means unbounded
	Kind  LogKind   // empty means every kind
	Limit int       // 0 means no limit
}
