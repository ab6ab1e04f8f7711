// Package ledger contains the durable entities of the engine and the narrow
// store interface the application layer reads and writes them through.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER
// ══════════════════════════════════════════════════════════════════════════════

// User is the owner of one stats row and all logs, quests and trackers.
type User struct {
	ID          string
	TelegramID  int64
	DisplayName string
	CreatedAt   time.Time
}

// NewUser creates a user for a Telegram account seen for the first time.
func NewUser(telegramID int64, displayName string, now time.Time) (*User, error) {
	if telegramID <= 0 {
		return nil, shared.ErrInvalidTelegramID
	}
	return &User{
		ID:          uuid.NewString(),
		TelegramID:  telegramID,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY LOG
// ══════════════════════════════════════════════════════════════════════════════

// LogKind discriminates the activity log variants.
type LogKind string

const (
	LogCycle       LogKind = "cycle"
	LogHabit       LogKind = "habit"
	LogConsumption LogKind = "consumption"
	LogMood        LogKind = "mood"
	LogIdea        LogKind = "idea"
	LogSocial      LogKind = "social"
	LogFinancial   LogKind = "financial"
	LogAddiction   LogKind = "addiction"
	LogNote        LogKind = "note"
)

// IsValid checks if the kind is known.
func (k LogKind) IsValid() bool {
	switch k {
	case LogCycle, LogHabit, LogConsumption, LogMood, LogIdea,
		LogSocial, LogFinancial, LogAddiction, LogNote:
		return true
	}
	return false
}

// Consumption categories that count towards physical activity.
const (
	CategoryFast     = "fast"
	CategorySleep    = "sleep"
	CategoryExercise = "exercise"
)

// Addiction log categories.
const (
	CategoryAddictionStart   = "start"
	CategoryAddictionRelapse = "relapse"
)

// ActivityLog is an append-only record of something the user did.
// Cycles are the only mutable kind: EndedAt goes from nil to a timestamp once.
type ActivityLog struct {
	ID         string
	UserID     string
	Kind       LogKind
	Pillar     progression.Pillar
	XP         int
	Title      string
	Detail     string
	Category   string
	Quantity   float64
	Amount     decimal.Decimal
	Energy     int
	Focus      int
	OccurredAt time.Time
	EndedAt    *time.Time
}

// NewActivityLog creates a log with a fresh ID.
func NewActivityLog(userID string, kind LogKind, pillar progression.Pillar, xp int, title string, at time.Time) *ActivityLog {
	return &ActivityLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		Pillar:     pillar,
		XP:         xp,
		Title:      strings.TrimSpace(title),
		OccurredAt: at,
	}
}

// IsOpen reports whether a cycle has not been closed yet.
func (l *ActivityLog) IsOpen() bool {
	return l.Kind == LogCycle && l.EndedAt == nil
}

// Duration returns how long a closed cycle lasted.
func (l *ActivityLog) Duration() time.Duration {
	if l.EndedAt == nil {
		return 0
	}
	return l.EndedAt.Sub(l.OccurredAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEST PRESET
// ══════════════════════════════════════════════════════════════════════════════

// QuestPreset is a named daily habit with a fixed reward.
type QuestPreset struct {
	ID     string             `yaml:"-"`
	UserID string             `yaml:"-"`
	Pillar progression.Pillar `yaml:"pillar"`
	Title  string             `yaml:"title"`
	XP     int                `yaml:"xp"`
}

// Validate checks the preset fields.
func (q *QuestPreset) Validate() error {
	if strings.TrimSpace(q.Title) == "" || !q.Pillar.IsValid() || q.XP <= 0 {
		return shared.ErrInvalidQuest
	}
	return nil
}

// Matches reports whether a title refers to this quest.
func (q *QuestPreset) Matches(title string) bool {
	return strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(q.Title))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADDICTION TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// AddictionTracker counts time since the last relapse of a named vice.
type AddictionTracker struct {
	ID            string
	UserID        string
	Name          string
	StartedAt     time.Time
	LastRelapseAt time.Time
	RelapseCount  int
	RecordHours   float64
}

// NewAddictionTracker starts tracking a vice at now.
func NewAddictionTracker(userID, name string, now time.Time) (*AddictionTracker, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrEmptyTrackerName
	}
	return &AddictionTracker{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		StartedAt:     now,
		LastRelapseAt: now,
	}, nil
}

// Relapse records a relapse at now and returns the clean hours it ended.
func (t *AddictionTracker) Relapse(now time.Time) float64 {
	clean := progression.CleanHours(t.LastRelapseAt, now)
	t.RecordHours = progression.RecordAfter(t.RecordHours, clean)
	t.RelapseCount++
	t.LastRelapseAt = now
	return clean
}

// HoursClean returns the current clean interval.
func (t *AddictionTracker) HoursClean(now time.Time) float64 {
	return progression.CleanHours(t.LastRelapseAt, now)
}

// NameKey is the case-insensitive lookup key of a tracker name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
