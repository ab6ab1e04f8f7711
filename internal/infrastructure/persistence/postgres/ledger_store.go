package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// LedgerStore implements ledger.Store using PostgreSQL.
type LedgerStore struct {
	conn *Connection
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(conn *Connection) *LedgerStore {
	return &LedgerStore{conn: conn}
}

var _ ledger.Store = (*LedgerStore)(nil)

// isUUID guards ID lookups: comparing a uuid column with a malformed string
// is a query error, not an empty result.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// WithinUser locks the user's stats row for the duration of fn.
func (s *LedgerStore) WithinUser(ctx context.Context, userID string, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if !isUUID(userID) {
		return shared.ErrUserNotFound
	}
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		stats, err := getStats(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		return fn(ctx, &userTx{tx: tx, userID: userID, stats: stats})
	})
}

type userTx struct {
	tx     pgx.Tx
	userID string
	stats  progression.Stats
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
	_, err := t.tx.Exec(ctx, `
		UPDATE pillar_stats SET
			career_xp = $1, career_level = $2, career_streak = $3,
			cognition_xp = $4, cognition_level = $5, cognition_streak = $6,
			physical_xp = $7, physical_level = $8, physical_streak = $9,
			social_xp = $10, social_level = $11, social_streak = $12,
			updated_at = NOW()
		WHERE user_id = $13`,
		stats.Career.XP, stats.Career.Level, stats.Career.Streak,
		stats.Cognition.XP, stats.Cognition.Level, stats.Cognition.Streak,
		stats.Physical.XP, stats.Physical.Level, stats.Physical.Streak,
		stats.Social.XP, stats.Social.Level, stats.Social.Streak,
		t.userID,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	t.stats = stats
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGS
// ══════════════════════════════════════════════════════════════════════════════

const logColumns = `id::text, user_id::text, kind, pillar, xp, title, detail, category,
	quantity, amount::text, energy, focus, occurred_at, ended_at`

func (t *userTx) AppendLog(ctx context.Context, log *ledger.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.UserID = t.userID

	_, err := t.tx.Exec(ctx, `
		INSERT INTO activity_logs (
			id, user_id, kind, pillar, xp, title, title_key, detail, category,
			quantity, amount, energy, focus, occurred_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12, $13, $14, $15)`,
		log.ID, log.UserID, string(log.Kind), string(log.Pillar), log.XP,
		log.Title, ledger.NameKey(log.Title), log.Detail, log.Category,
		log.Quantity, log.Amount.String(), log.Energy, log.Focus, log.OccurredAt, log.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (t *userTx) GetLog(ctx context.Context, logID string) (*ledger.ActivityLog, error) {
	if !isUUID(logID) {
		return nil, shared.ErrActivityNotFound
	}
	log, err := scanLog(t.tx.QueryRow(ctx,
		`SELECT `+logColumns+` FROM activity_logs WHERE id = $1 AND user_id = $2`,
		logID, t.userID))
	if IsNoRows(err) {
		return nil, shared.ErrActivityNotFound
	}
	return log, err
}

func (t *userTx) DeleteLog(ctx context.Context, logID string) error {
	if !isUUID(logID) {
		return shared.ErrActivityNotFound
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM activity_logs WHERE id = $1 AND user_id = $2`, logID, t.userID)
	if err != nil {
		return fmt.Errorf("failed to delete log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrActivityNotFound
	}
	return nil
}

func (t *userTx) LatestOpenCycle(ctx context.Context) (*ledger.ActivityLog, error) {
	log, err := scanLog(t.tx.QueryRow(ctx, `
		SELECT `+logColumns+` FROM activity_logs
		WHERE user_id = $1 AND kind = $2 AND ended_at IS NULL
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1`,
		t.userID, string(ledger.LogCycle)))
	if IsNoRows(err) {
		return nil, nil
	}
	return log, err
}

func (t *userTx) CloseCycle(ctx context.Context, logID string, endedAt time.Time, xp int) error {
	if !isUUID(logID) {
		return shared.ErrActivityNotFound
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE activity_logs SET ended_at = $1, xp = $2
		WHERE id = $3 AND user_id = $4 AND kind = $5 AND ended_at IS NULL`,
		endedAt, xp, logID, t.userID, string(ledger.LogCycle))
	if err != nil {
		return fmt.Errorf("failed to close cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrActivityNotFound
	}
	return nil
}

func (t *userTx) FindHabitLog(ctx context.Context, title string, from, to time.Time) (*ledger.ActivityLog, error) {
	log, err := scanLog(t.tx.QueryRow(ctx, `
		SELECT `+logColumns+` FROM activity_logs
		WHERE user_id = $1 AND kind = $2 AND title_key = $3
		  AND occurred_at BETWEEN $4 AND $5
		ORDER BY occurred_at
		LIMIT 1`,
		t.userID, string(ledger.LogHabit), ledger.NameKey(title), from, to))
	if IsNoRows(err) {
		return nil, nil
	}
	return log, err
}

func (t *userTx) LogsBetween(ctx context.Context, from, to time.Time) ([]*ledger.ActivityLog, error) {
	return queryLogs(ctx, t.tx, `
		SELECT `+logColumns+` FROM activity_logs
		WHERE user_id = $1 AND occurred_at BETWEEN $2 AND $3
		ORDER BY occurred_at, seq`,
		t.userID, from, to)
}

func (t *userTx) DeleteAllLogs(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM activity_logs WHERE user_id = $1`, t.userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

const questColumns = `id::text, user_id::text, pillar, title, xp`

func (t *userTx) FindQuest(ctx context.Context, idOrTitle string) (*ledger.QuestPreset, error) {
	var (
		q   *ledger.QuestPreset
		err error
	)
	if isUUID(idOrTitle) {
		q, err = scanQuest(t.tx.QueryRow(ctx,
			`SELECT `+questColumns+` FROM quest_presets WHERE user_id = $1 AND id = $2`,
			t.userID, idOrTitle))
	} else {
		q, err = scanQuest(t.tx.QueryRow(ctx,
			`SELECT `+questColumns+` FROM quest_presets WHERE user_id = $1 AND title_key = $2`,
			t.userID, ledger.NameKey(idOrTitle)))
	}
	if IsNoRows(err) {
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

	err := t.tx.QueryRow(ctx, `
		INSERT INTO quest_presets (id, user_id, pillar, title, title_key, xp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, title_key) DO UPDATE SET
			pillar = EXCLUDED.pillar,
			title = EXCLUDED.title,
			xp = EXCLUDED.xp
		RETURNING id::text`,
		quest.ID, quest.UserID, string(quest.Pillar), strings.TrimSpace(quest.Title),
		ledger.NameKey(quest.Title), quest.XP,
	).Scan(&quest.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert quest: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADDICTION TRACKERS
// ══════════════════════════════════════════════════════════════════════════════

const trackerColumns = `id::text, user_id::text, name, started_at, last_relapse_at, relapse_count, record_hours`

func (t *userTx) FindTracker(ctx context.Context, name string) (*ledger.AddictionTracker, error) {
	tr, err := scanTracker(t.tx.QueryRow(ctx,
		`SELECT `+trackerColumns+` FROM addiction_trackers WHERE user_id = $1 AND name_key = $2 FOR UPDATE`,
		t.userID, ledger.NameKey(name)))
	if IsNoRows(err) {
		return nil, nil
	}
	return tr, err
}

func (t *userTx) GetTracker(ctx context.Context, trackerID string) (*ledger.AddictionTracker, error) {
	if !isUUID(trackerID) {
		return nil, shared.ErrTrackerNotFound
	}
	tr, err := scanTracker(t.tx.QueryRow(ctx,
		`SELECT `+trackerColumns+` FROM addiction_trackers WHERE user_id = $1 AND id = $2 FOR UPDATE`,
		t.userID, trackerID))
	if IsNoRows(err) {
		return nil, shared.ErrTrackerNotFound
	}
	return tr, err
}

func (t *userTx) SaveTracker(ctx context.Context, tracker *ledger.AddictionTracker) error {
	if tracker.ID == "" {
		tracker.ID = uuid.NewString()
	}
	tracker.UserID = t.userID

	_, err := t.tx.Exec(ctx, `
		INSERT INTO addiction_trackers (
			id, user_id, name, name_key, started_at, last_relapse_at, relapse_count, record_hours
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_key = EXCLUDED.name_key,
			last_relapse_at = EXCLUDED.last_relapse_at,
			relapse_count = EXCLUDED.relapse_count,
			record_hours = EXCLUDED.record_hours`,
		tracker.ID, tracker.UserID, tracker.Name, ledger.NameKey(tracker.Name),
		tracker.StartedAt, tracker.LastRelapseAt, tracker.RelapseCount, tracker.RecordHours,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrTrackerExists
		}
		return fmt.Errorf("failed to save tracker: %w", err)
	}
	return nil
}

func (t *userTx) DeleteTracker(ctx context.Context, trackerID string) error {
	if !isUUID(trackerID) {
		return shared.ErrTrackerNotFound
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM addiction_trackers WHERE id = $1 AND user_id = $2`, trackerID, t.userID)
	if err != nil {
		return fmt.Errorf("failed to delete tracker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTrackerNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLL-UP
// ══════════════════════════════════════════════════════════════════════════════

func (t *userTx) MarkRolledUp(ctx context.Context, day string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO rollup_markers (user_id, day) VALUES ($1, $2::date)
		ON CONFLICT (user_id, day) DO NOTHING`,
		t.userID, day)
	if err != nil {
		return false, fmt.Errorf("failed to mark roll-up: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS AND READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

const userColumns = `id::text, telegram_id, display_name, created_at`

func (s *LedgerStore) EnsureUser(ctx context.Context, telegramID int64, displayName string) (*ledger.User, bool, error) {
	candidate, err := ledger.NewUser(telegramID, displayName, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}

	var (
		user    *ledger.User
		created bool
	)
	err = s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO users (id, telegram_id, display_name, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (telegram_id) DO NOTHING`,
			candidate.ID, candidate.TelegramID, candidate.DisplayName, candidate.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		if tag.RowsAffected() == 1 {
			if _, err := tx.Exec(ctx, `INSERT INTO pillar_stats (user_id) VALUES ($1)`, candidate.ID); err != nil {
				return fmt.Errorf("failed to insert stats: %w", err)
			}
			user, created = candidate, true
			return nil
		}

		user, err = scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *LedgerStore) GetUser(ctx context.Context, userID string) (*ledger.User, error) {
	if !isUUID(userID) {
		return nil, shared.ErrUserNotFound
	}
	u, err := scanUser(s.conn.Pool().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	return u, err
}

func (s *LedgerStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*ledger.User, error) {
	u, err := scanUser(s.conn.Pool().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	return u, err
}

func (s *LedgerStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Pool().Query(ctx, `SELECT id::text FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *LedgerStore) GetStats(ctx context.Context, userID string) (progression.Stats, error) {
	if !isUUID(userID) {
		return progression.Stats{}, shared.ErrUserNotFound
	}
	return getStats(ctx, s.conn.Pool(), userID, false)
}

func (s *LedgerStore) ListLogs(ctx context.Context, userID string, filter ledger.LogFilter) ([]*ledger.ActivityLog, error) {
	if !isUUID(userID) {
		return nil, shared.ErrUserNotFound
	}

	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <= $%d", filter.To)
	}
	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}

	query := `SELECT ` + logColumns + ` FROM activity_logs WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurred_at DESC, seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return queryLogs(ctx, s.conn.Pool(), query, args...)
}

func (s *LedgerStore) ListQuests(ctx context.Context, userID string) ([]*ledger.QuestPreset, error) {
	if !isUUID(userID) {
		return nil, shared.ErrUserNotFound
	}
	rows, err := s.conn.Pool().Query(ctx,
		`SELECT `+questColumns+` FROM quest_presets WHERE user_id = $1 ORDER BY pillar, title_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
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

func (s *LedgerStore) ListTrackers(ctx context.Context, userID string) ([]*ledger.AddictionTracker, error) {
	if !isUUID(userID) {
		return nil, shared.ErrUserNotFound
	}
	rows, err := s.conn.Pool().Query(ctx,
		`SELECT `+trackerColumns+` FROM addiction_trackers WHERE user_id = $1 ORDER BY name_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackers: %w", err)
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

func getStats(ctx context.Context, q Querier, userID string, forUpdate bool) (progression.Stats, error) {
	query := `
		SELECT career_xp, career_level, career_streak,
		       cognition_xp, cognition_level, cognition_streak,
		       physical_xp, physical_level, physical_streak,
		       social_xp, social_level, social_streak
		FROM pillar_stats WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var s progression.Stats
	err := q.QueryRow(ctx, query, userID).Scan(
		&s.Career.XP, &s.Career.Level, &s.Career.Streak,
		&s.Cognition.XP, &s.Cognition.Level, &s.Cognition.Streak,
		&s.Physical.XP, &s.Physical.Level, &s.Physical.Streak,
		&s.Social.XP, &s.Social.Level, &s.Social.Streak,
	)
	if IsNoRows(err) {
		return progression.Stats{}, shared.ErrUserNotFound
	}
	if err != nil {
		return progression.Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return s, nil
}

func scanUser(row pgx.Row) (*ledger.User, error) {
	var u ledger.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.DisplayName, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanLog(row pgx.Row) (*ledger.ActivityLog, error) {
	var (
		l      ledger.ActivityLog
		kind   string
		pillar string
		amount string
	)
	err := row.Scan(&l.ID, &l.UserID, &kind, &pillar, &l.XP, &l.Title, &l.Detail, &l.Category,
		&l.Quantity, &amount, &l.Energy, &l.Focus, &l.OccurredAt, &l.EndedAt)
	if err != nil {
		return nil, err
	}

	l.Kind = ledger.LogKind(kind)
	l.Pillar = progression.Pillar(pillar)
	if l.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount of log %s: %w", l.ID, err)
	}
	return &l, nil
}

func queryLogs(ctx context.Context, q Querier, query string, args ...any) ([]*ledger.ActivityLog, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []*ledger.ActivityLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanQuest(row pgx.Row) (*ledger.QuestPreset, error) {
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

func scanTracker(row pgx.Row) (*ledger.AddictionTracker, error) {
	var tr ledger.AddictionTracker
	err := row.Scan(&tr.ID, &tr.UserID, &tr.Name, &tr.StartedAt, &tr.LastRelapseAt, &tr.RelapseCount, &tr.RecordHours)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}
