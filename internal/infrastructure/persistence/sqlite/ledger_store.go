package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an already opened database. The schema must be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

var _ ledger.Store = (*Store)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// WithinUser runs fn in one IMMEDIATE transaction. The write lock is taken by
// BEGIN, so the stats read below is already serialised against other writers.
func (s *Store) WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return withTx(ctx, s.db, func(sqlTx *sql.Tx) error {
		stats, err := getStats(ctx, sqlTx, userID)
		if err != nil {
			return err
		}
		return fn(ctx, &userTx{tx: sqlTx, userID: userID, stats: stats, now: s.now})
	})
}

type userTx struct {
	tx     *sql.Tx
	userID string
	stats  progression.Stats
	now    func() time.Time
}

var _ ledger.Tx = (*userTx)(nil)

func (t *userTx) UserID() string {
	return t.userID
}

func (t *userTx) Stats() progression.Stats {
	return t.stats
}

func (t *userTx) SaveStats(ctx context.Context, stats progression.Stats) error {
	stats = stats.Normalized()
	_, err := t.tx.ExecContext(ctx, `
		UPDATE pillar_stats SET
			career_xp = ?, career_level = ?, career_streak = ?,
			cognition_xp = ?, cognition_level = ?, cognition_streak = ?,
			physical_xp = ?, physical_level = ?, physical_streak = ?,
			social_xp = ?, social_level = ?, social_streak = ?,
			updated_at = ?
		WHERE user_id = ?`,
		stats.Career.XP, stats.Career.Level, stats.Career.Streak,
		stats.Cognition.XP, stats.Cognition.Level, stats.Cognition.Streak,
		stats.Physical.XP, stats.Physical.Level, stats.Physical.Streak,
		stats.Social.XP, stats.Social.Level, stats.Social.Streak,
		toUnix(t.now()), t.userID,
	)
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	t.stats = stats
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGS
// ══════════════════════════════════════════════════════════════════════════════

const logColumns = `id, user_id, kind, pillar, xp, title, detail, category,
	quantity, amount, energy, focus, occurred_at, ended_at`

func (t *userTx) AppendLog(ctx context.Context, log *ledger.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.UserID = t.userID

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_logs (`+logColumns+`, title_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.UserID, string(log.Kind), string(log.Pillar), log.XP,
		log.Title, log.Detail, log.Category, log.Quantity, log.Amount.String(),
		log.Energy, log.Focus, toUnix(log.OccurredAt), nullableUnix(log.EndedAt),
		ledger.NameKey(log.Title),
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (t *userTx) GetLog(ctx context.Context, logID string) (*ledger.ActivityLog, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM activity_logs WHERE id = ? AND user_id = ?`,
		logID, t.userID)
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrActivityNotFound
	}
	return log, err
}

func (t *userTx) DeleteLog(ctx context.Context, logID string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM activity_logs WHERE id = ? AND user_id = ?`, logID, t.userID)
	if err != nil {
		return fmt.Errorf("delete log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrActivityNotFound
	}
	return nil
}

func (t *userTx) LatestOpenCycle(ctx context.Context) (*ledger.ActivityLog, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+logColumns+` FROM activity_logs
		WHERE user_id = ? AND kind = ? AND ended_at IS NULL
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT 1`,
		t.userID, string(ledger.LogCycle))
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return log, err
}

func (t *userTx) CloseCycle(ctx context.Context, logID string, endedAt time.Time, xp int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE activity_logs SET ended_at = ?, xp = ?
		WHERE id = ? AND user_id = ? AND kind = ? AND ended_at IS NULL`,
		toUnix(endedAt), xp, logID, t.userID, string(ledger.LogCycle))
	if err != nil {
		return fmt.Errorf("close cycle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrActivityNotFound
	}
	return nil
}

func (t *userTx) FindHabitLog(ctx context.Context, title string, from, to time.Time) (*ledger.ActivityLog, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+logColumns+` FROM activity_logs
		WHERE user_id = ? AND kind = ? AND title_key = ?
		  AND occurred_at BETWEEN ? AND ?
		ORDER BY occurred_at
		LIMIT 1`,
		t.userID, string(ledger.LogHabit), ledger.NameKey(title), toUnix(from), toUnix(to))
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return log, err
}

func (t *userTx) LogsBetween(ctx context.Context, from, to time.Time) ([]*ledger.ActivityLog, error) {
	return queryLogs(ctx, t.tx, `
		SELECT `+logColumns+` FROM activity_logs
		WHERE user_id = ? AND occurred_at BETWEEN ? AND ?
		ORDER BY occurred_at`,
		t.userID, toUnix(from), toUnix(to))
}

func (t *userTx) DeleteAllLogs(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM activity_logs WHERE user_id = ?`, t.userID)
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return res.RowsAffected()
}

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

func (t *userTx) FindQuest(ctx context.Context, idOrTitle string) (*ledger.QuestPreset, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, pillar, title, xp FROM quest_presets
		WHERE user_id = ? AND (id = ? OR title_key = ?)
		LIMIT 1`,
		t.userID, idOrTitle, ledger.NameKey(idOrTitle))
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (t *userTx) UpsertQuest(ctx context.Context, quest *ledger.QuestPreset) error {
	if err := quest.Validate(); err != nil {
		return err
	}
	if quest.ID == "" {
		quest.ID = uuid.NewString()
	}
	quest.UserID = t.userID

	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO quest_presets (id, user_id, pillar, title, title_key, xp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, title_key) DO UPDATE SET
			pillar = excluded.pillar,
			title = excluded.title,
			xp = excluded.xp
		RETURNING id`,
		quest.ID, quest.UserID, string(quest.Pillar), strings.TrimSpace(quest.Title),
		ledger.NameKey(quest.Title), quest.XP,
	).Scan(&quest.ID)
	if err != nil {
		return fmt.Errorf("upsert quest: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADDICTION TRACKERS
// ══════════════════════════════════════════════════════════════════════════════

const trackerColumns = `id, user_id, name, started_at, last_relapse_at, relapse_count, record_hours`

func (t *userTx) FindTracker(ctx context.Context, name string) (*ledger.AddictionTracker, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM addiction_trackers WHERE user_id = ? AND name_key = ?`,
		t.userID, ledger.NameKey(name))
	tr, err := scanTracker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tr, err
}

func (t *userTx) GetTracker(ctx context.Context, trackerID string) (*ledger.AddictionTracker, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+trackerColumns+` FROM addiction_trackers WHERE user_id = ? AND id = ?`,
		t.userID, trackerID)
	tr, err := scanTracker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackerNotFound
	}
	return tr, err
}

func (t *userTx) SaveTracker(ctx context.Context, tracker *ledger.AddictionTracker) error {
	if tracker.ID == "" {
		tracker.ID = uuid.NewString()
	}
	tracker.UserID = t.userID

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO addiction_trackers (`+trackerColumns+`, name_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			name_key = excluded.name_key,
			last_relapse_at = excluded.last_relapse_at,
			relapse_count = excluded.relapse_count,
			record_hours = excluded.record_hours`,
		tracker.ID, tracker.UserID, tracker.Name, toUnix(tracker.StartedAt),
		toUnix(tracker.LastRelapseAt), tracker.RelapseCount, tracker.RecordHours,
		ledger.NameKey(tracker.Name),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrTrackerExists
		}
		return fmt.Errorf("save tracker: %w", err)
	}
	return nil
}

func (t *userTx) DeleteTracker(ctx context.Context, trackerID string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM addiction_trackers WHERE id = ? AND user_id = ?`, trackerID, t.userID)
	if err != nil {
		return fmt.Errorf("delete tracker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrTrackerNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLL-UP
// ══════════════════════════════════════════════════════════════════════════════

func (t *userTx) MarkRolledUp(ctx context.Context, day string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO rollup_markers (user_id, day, rolled_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, day) DO NOTHING`,
		t.userID, day, toUnix(t.now()))
	if err != nil {
		return false, fmt.Errorf("mark rolled up: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark rolled up: %w", err)
	}
	return n == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS AND READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) EnsureUser(ctx context.Context, telegramID int64, displayName string) (*ledger.User, bool, error) {
	var (
		user    *ledger.User
		created bool
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT id, telegram_id, display_name, created_at FROM users WHERE telegram_id = ?`, telegramID))
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		u, err := ledger.NewUser(telegramID, displayName, s.now())
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, telegram_id, display_name, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.TelegramID, u.DisplayName, toUnix(u.CreatedAt)); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pillar_stats (user_id, updated_at) VALUES (?, ?)`,
			u.ID, toUnix(u.CreatedAt)); err != nil {
			return fmt.Errorf("insert stats: %w", err)
		}
		user, created = u, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*ledger.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, display_name, created_at FROM users WHERE id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUserNotFound
	}
	return u, err
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*ledger.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, display_name, created_at FROM users WHERE telegram_id = ?`, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUserNotFound
	}
	return u, err
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetStats(ctx context.Context, userID string) (progression.Stats, error) {
	return getStats(ctx, s.db, userID)
}

func (s *Store) ListLogs(ctx context.Context, userID string, filter ledger.LogFilter) ([]*ledger.ActivityLog, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if !filter.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, toUnix(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, toUnix(filter.To))
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	query := `SELECT ` + logColumns + ` FROM activity_logs WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurred_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return queryLogs(ctx, s.db, query, args...)
}

func (s *Store) ListQuests(ctx context.Context, userID string) ([]*ledger.QuestPreset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pillar, title, xp FROM quest_presets
		WHERE user_id = ? ORDER BY pillar, title_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	var quests []*ledger.QuestPreset
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

func (s *Store) ListTrackers(ctx context.Context, userID string) ([]*ledger.AddictionTracker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackerColumns+` FROM addiction_trackers WHERE user_id = ? ORDER BY name_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	defer rows.Close()

	var trackers []*ledger.AddictionTracker
	for rows.Next() {
		tr, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, tr)
	}
	return trackers, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNING
// ══════════════════════════════════════════════════════════════════════════════

type scanner interface {
	Scan(dest ...any) error
}

func getStats(ctx context.Context, q querier, userID string) (progression.Stats, error) {
	var s progression.Stats
	err := q.QueryRowContext(ctx, `
		SELECT career_xp, career_level, career_streak,
		       cognition_xp, cognition_level, cognition_streak,
		       physical_xp, physical_level, physical_streak,
		       social_xp, social_level, social_streak
		FROM pillar_stats WHERE user_id = ?`, userID,
	).Scan(
		&s.Career.XP, &s.Career.Level, &s.Career.Streak,
		&s.Cognition.XP, &s.Cognition.Level, &s.Cognition.Streak,
		&s.Physical.XP, &s.Physical.Level, &s.Physical.Streak,
		&s.Social.XP, &s.Social.Level, &s.Social.Streak,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return progression.Stats{}, shared.ErrUserNotFound
	}
	if err != nil {
		return progression.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return s, nil
}

func scanUser(row scanner) (*ledger.User, error) {
	var (
		u         ledger.User
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.TelegramID, &u.DisplayName, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}

func scanLog(row scanner) (*ledger.ActivityLog, error) {
	var (
		l          ledger.ActivityLog
		kind       string
		pillar     string
		amount     string
		occurredAt int64
		endedAt    sql.NullInt64
	)
	err := row.Scan(&l.ID, &l.UserID, &kind, &pillar, &l.XP, &l.Title, &l.Detail, &l.Category,
		&l.Quantity, &amount, &l.Energy, &l.Focus, &occurredAt, &endedAt)
	if err != nil {
		return nil, err
	}

	l.Kind = ledger.LogKind(kind)
	l.Pillar = progression.Pillar(pillar)
	l.OccurredAt = fromUnix(occurredAt)
	l.EndedAt = fromNullableUnix(endedAt)
	if l.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount of log %s: %w", l.ID, err)
	}
	return &l, nil
}

func queryLogs(ctx context.Context, q querier, query string, args ...any) ([]*ledger.ActivityLog, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []*ledger.ActivityLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanQuest(row scanner) (*ledger.QuestPreset, error) {
	var (
		q      ledger.QuestPreset
		pillar string
	)
	if err := row.Scan(&q.ID, &q.UserID, &pillar, &q.Title, &q.XP); err != nil {
		return nil, err
	}
	q.Pillar = progression.Pillar(pillar)
	return &q, nil
}

func scanTracker(row scanner) (*ledger.AddictionTracker, error) {
	var (
		tr            ledger.AddictionTracker
		startedAt     int64
		lastRelapseAt int64
	)
	err := row.Scan(&tr.ID, &tr.UserID, &tr.Name, &startedAt, &lastRelapseAt, &tr.RelapseCount, &tr.RecordHours)
	if err != nil {
		return nil, err
	}
	tr.StartedAt = fromUnix(startedAt)
	tr.LastRelapseAt = fromUnix(lastRelapseAt)
	return &tr, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
