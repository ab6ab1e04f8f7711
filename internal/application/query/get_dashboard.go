// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Everything the dashboard and the /stats command show, in one read model:
// pillar progress, today's quest checklist, clean time per vice and the
// latest activity.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRecentLimit is the number of recent logs returned by default.
const DefaultRecentLimit = 20

// GetDashboardQuery contains the parameters of a dashboard read.
type GetDashboardQuery struct {
	// UserID is the internal ID of the user.
	UserID string

	// Now pins the read to an instant. Zero means the current time, and only
	// such reads are served from the cache.
	Now time.Time

	// RecentLimit caps the recent activity list (default 20).
	RecentLimit int
}

// Validate checks the parameters.
func (q *GetDashboardQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.RecentLimit <= 0 {
		q.RecentLimit = DefaultRecentLimit
	}
	if q.RecentLimit > 200 {
		q.RecentLimit = 200
	}
	return nil
}

// Dashboard is the read model of one user.
type Dashboard struct {
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Day         string        `json:"day"`
	GeneratedAt time.Time     `json:"generated_at"`
	Pillars     []PillarDTO   `json:"pillars"`
	Quests      []QuestDTO    `json:"quests"`
	Trackers    []TrackerDTO  `json:"trackers"`
	Recent      []ActivityDTO `json:"recent"`
}

// PillarDTO is one pillar with what the progress bar needs.
type PillarDTO struct {
	Pillar   progression.Pillar `json:"pillar"`
	Label    string             `json:"label"`
	Emoji    string             `json:"emoji"`
	Level    int                `json:"level"`
	XP       int                `json:"xp"`
	XPToNext int                `json:"xp_to_next"`
	Progress float64            `json:"progress"`
	Streak   int                `json:"streak"`
	TotalXP  int                `json:"total_xp"`
}

// QuestDTO is a quest preset with today's state.
type QuestDTO struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Pillar    progression.Pillar `json:"pillar"`
	XP        int                `json:"xp"`
	Completed bool               `json:"completed"`
}

// TrackerDTO is an addiction tracker with its derived clean time.
type TrackerDTO struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	StartedAt     time.Time `json:"started_at"`
	LastRelapseAt time.Time `json:"last_relapse_at"`
	HoursClean    float64   `json:"hours_clean"`
	DaysClean     int       `json:"days_clean"`
	Rank          string    `json:"rank"`
	RelapseCount  int       `json:"relapse_count"`
	RecordHours   float64   `json:"record_hours"`
}

// ActivityDTO is one ledger entry.
type ActivityDTO struct {
	ID         string             `json:"id"`
	Kind       ledger.LogKind     `json:"kind"`
	Pillar     progression.Pillar `json:"pillar"`
	XP         int                `json:"xp"`
	Title      string             `json:"title"`
	Detail     string             `json:"detail,omitempty"`
	Category   string             `json:"category,omitempty"`
	Quantity   float64            `json:"quantity,omitempty"`
	Amount     string             `json:"amount,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	EndedAt    *time.Time         `json:"ended_at,omitempty"`
	Open       bool               `json:"open,omitempty"`
}

// Pillar returns the entry of p, or false when missing.
func (d *Dashboard) Pillar(p progression.Pillar) (PillarDTO, bool) {
	for _, dto := range d.Pillars {
		if dto.Pillar == p {
			return dto, true
		}
	}
	return PillarDTO{}, false
}

// CompletedQuests counts the quests done today.
func (d *Dashboard) CompletedQuests() int {
	n := 0
	for _, q := range d.Quests {
		if q.Completed {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DashboardCache keeps rendered dashboards for a short time.
type DashboardCache interface {
	// LoadDashboard returns the cached dashboard, or nil on a miss.
	LoadDashboard(ctx context.Context, userID string) (*Dashboard, error)

	// StoreDashboard caches a dashboard.
	StoreDashboard(ctx context.Context, userID string, d *Dashboard) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// GetDashboardHandlerConfig contains configuration for the handler.
type GetDashboardHandlerConfig struct {
	Location *time.Location
	Cache    DashboardCache
	Clock    Clock
	Logger   *slog.Logger
}

// GetDashboardHandler handles the GetDashboardQuery.
type GetDashboardHandler struct {
	store  ledger.Store
	loc    *time.Location
	cache  DashboardCache
	clock  Clock
	logger *slog.Logger
}

// NewGetDashboardHandler creates a new GetDashboardHandler.
func NewGetDashboardHandler(store ledger.Store, config GetDashboardHandlerConfig) *GetDashboardHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &GetDashboardHandler{
		store:  store,
		loc:    config.Location,
		cache:  config.Cache,
		clock:  config.Clock,
		logger: config.Logger,
	}
}

// Handle executes the query.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*Dashboard, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	cacheable := h.cache != nil && q.Now.IsZero() && q.RecentLimit == DefaultRecentLimit
	if cacheable {
		cached, err := h.cache.LoadDashboard(ctx, q.UserID)
		if err != nil {
			h.logger.Warn("dashboard cache read failed", "user_id", q.UserID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	now := q.Now
	if now.IsZero() {
		now = h.clock.Now()
	}

	d, err := h.build(ctx, q.UserID, now, q.RecentLimit)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := h.cache.StoreDashboard(ctx, q.UserID, d); err != nil {
			h.logger.Warn("dashboard cache write failed", "user_id", q.UserID, "error", err)
		}
	}
	return d, nil
}

func (h *GetDashboardHandler) build(ctx context.Context, userID string, now time.Time, limit int) (*Dashboard, error) {
	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	stats, err := h.store.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	quests, err := h.store.ListQuests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}

	from, to := timeutil.DayBounds(now, h.loc)
	habits, err := h.store.ListLogs(ctx, userID, ledger.LogFilter{From: from, To: to, Kind: ledger.LogHabit})
	if err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}

	trackers, err := h.store.ListTrackers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}

	recent, err := h.store.ListLogs(ctx, userID, ledger.LogFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list recent logs: %w", err)
	}

	d := &Dashboard{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Day:         timeutil.DayKey(now, h.loc),
		GeneratedAt: now,
		Pillars:     pillarDTOs(stats),
		Quests:      questDTOs(quests, habits),
		Trackers:    make([]TrackerDTO, 0, len(trackers)),
		Recent:      make([]ActivityDTO, 0, len(recent)),
	}
	for _, t := range trackers {
		d.Trackers = append(d.Trackers, trackerDTO(t, now))
	}
	for _, l := range recent {
		d.Recent = append(d.Recent, activityDTO(l))
	}
	return d, nil
}

func pillarDTOs(stats progression.Stats) []PillarDTO {
	out := make([]PillarDTO, 0, 4)
	for _, p := range progression.AllPillars() {
		cur, err := stats.Get(p)
		if err != nil {
			continue
		}
		cost := progression.CostOf(cur.Level)
		out = append(out, PillarDTO{
			Pillar:   p,
			Label:    p.Label(),
			Emoji:    p.Emoji(),
			Level:    cur.Level,
			XP:       cur.XP,
			XPToNext: cost,
			Progress: float64(cur.XP) / float64(cost),
			Streak:   cur.Streak,
			TotalXP:  progression.TotalXP(cur),
		})
	}
	return out
}

func questDTOs(quests []*ledger.QuestPreset, habits []*ledger.ActivityLog) []QuestDTO {
	done := make(map[string]bool, len(habits))
	for _, l := range habits {
		done[ledger.NameKey(l.Title)] = true
	}

	out := make([]QuestDTO, 0, len(quests))
	for _, q := range quests {
		out = append(out, QuestDTO{
			ID:        q.ID,
			Title:     q.Title,
			Pillar:    q.Pillar,
			XP:        q.XP,
			Completed: done[ledger.NameKey(q.Title)],
		})
	}
	return out
}

func trackerDTO(t *ledger.AddictionTracker, now time.Time) TrackerDTO {
	days := progression.DaysClean(t.LastRelapseAt, now)
	return TrackerDTO{
		ID:            t.ID,
		Name:          t.Name,
		StartedAt:     t.StartedAt,
		LastRelapseAt: t.LastRelapseAt,
		HoursClean:    t.HoursClean(now),
		DaysClean:     days,
		Rank:          progression.RankFor(days).Title,
		RelapseCount:  t.RelapseCount,
		RecordHours:   t.RecordHours,
	}
}

func activityDTO(l *ledger.ActivityLog) ActivityDTO {
	dto := ActivityDTO{
		ID:         l.ID,
		Kind:       l.Kind,
		Pillar:     l.Pillar,
		XP:         l.XP,
		Title:      l.Title,
		Detail:     l.Detail,
		Category:   l.Category,
		Quantity:   l.Quantity,
		OccurredAt: l.OccurredAt,
		EndedAt:    l.EndedAt,
		Open:       l.IsOpen(),
	}
	if l.Kind == ledger.LogFinancial {
		dto.Amount = l.Amount.StringFixed(2)
	}
	return dto
}
