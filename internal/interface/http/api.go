package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lifeos-hub/lifeos/internal/application/command"
	"github.com/lifeos-hub/lifeos/internal/application/query"
	"github.com/lifeos-hub/lifeos/internal/domain/ledger"
	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD API
// The read model plus the writes the dashboard is allowed to make: quest
// toggles, activity deletion and tracker management.
// ══════════════════════════════════════════════════════════════════════════════

// DashboardReader reads the dashboard of a user.
type DashboardReader interface {
	Handle(ctx context.Context, q query.GetDashboardQuery) (*query.Dashboard, error)
}

// QuestToggler toggles a daily quest.
type QuestToggler interface {
	Handle(ctx context.Context, cmd command.ToggleQuestCommand) (*command.ToggleQuestResult, error)
}

// ActivityDeleter deletes a log and reverses its XP.
type ActivityDeleter interface {
	Handle(ctx context.Context, userID, logID string) (*command.DeleteActivityResult, error)
}

// Trackers manages addiction trackers.
type Trackers interface {
	Start(ctx context.Context, userID, name string) (*command.AddictionResult, error)
	Relapse(ctx context.Context, userID, name string) (*command.AddictionResult, error)
	Delete(ctx context.Context, userID, trackerID string) error
}

// API holds the dashboard route handlers.
type API struct {
	dashboard DashboardReader
	toggler   QuestToggler
	deleter   ActivityDeleter
	trackers  Trackers
	logger    *slog.Logger
}

// NewAPI creates the dashboard API.
func NewAPI(dashboard DashboardReader, toggler QuestToggler, deleter ActivityDeleter, trackers Trackers, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{dashboard: dashboard, toggler: toggler, deleter: deleter, trackers: trackers, logger: logger}
}

// ChangeDTO is the XP effect of a write.
type ChangeDTO struct {
	Pillar      progression.Pillar `json:"pillar"`
	Delta       int                `json:"delta"`
	XP          int                `json:"xp"`
	Level       int                `json:"level"`
	LeveledUp   bool               `json:"leveled_up,omitempty"`
	LeveledDown bool               `json:"leveled_down,omitempty"`
}

func changeDTO(c progression.Change) *ChangeDTO {
	if c.Delta == 0 && c.Pillar == "" {
		return nil
	}
	return &ChangeDTO{
		Pillar:      c.Pillar,
		Delta:       c.Delta,
		XP:          c.XP,
		Level:       c.Level,
		LeveledUp:   c.LeveledUp,
		LeveledDown: c.LeveledDown,
	}
}

// TrackerResponse is the result of a tracker write.
type TrackerResponse struct {
	Outcome    command.Outcome   `json:"outcome"`
	Message    string            `json:"message"`
	Tracker    *query.TrackerDTO `json:"tracker,omitempty"`
	CleanHours float64           `json:"clean_hours,omitempty"`
	NewRecord  bool              `json:"new_record,omitempty"`
	Change     *ChangeDTO        `json:"change,omitempty"`
}

// GetDashboard serves GET /api/v1/users/{id}/dashboard[?limit=n].
func (a *API) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetDashboardQuery{UserID: r.PathValue("id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		q.RecentLimit = n
	}

	d, err := a.dashboard.Handle(r.Context(), q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ToggleQuest serves POST /api/v1/users/{id}/quests/{quest}/toggle with a
// {"completed": bool} body.
func (a *API) ToggleQuest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := decodeBody(r, &body); err != nil || body.Completed == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", `expected {"completed": true|false}`)
		return
	}

	res, err := a.toggler.Handle(r.Context(), command.ToggleQuestCommand{
		UserID:    r.PathValue("id"),
		Quest:     r.PathValue("quest"),
		Completed: *body.Completed,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": res.Outcome,
		"quest":   res.Quest.Title,
		"day":     res.Day,
		"message": res.Message(),
		"change":  changeDTO(res.Change),
	})
}

// DeleteActivity serves DELETE /api/v1/users/{id}/activities/{logID}.
func (a *API) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	res, err := a.deleter.Handle(r.Context(), r.PathValue("id"), r.PathValue("logID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": res.Log.ID,
		"change":  changeDTO(res.Change),
	})
}

// StartTracker serves POST /api/v1/users/{id}/trackers with {"name": "..."}.
func (a *API) StartTracker(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", `expected {"name": "..."}`)
		return
	}

	res, err := a.trackers.Start(r.Context(), r.PathValue("id"), body.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == command.OutcomeStarted {
		status = http.StatusCreated
	}
	writeJSON(w, status, trackerResponse(res, body.Name))
}

// Relapse serves POST /api/v1/users/{id}/trackers/{name}/relapse.
func (a *API) Relapse(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	res, err := a.trackers.Relapse(r.Context(), r.PathValue("id"), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackerResponse(res, name))
}

// DeleteTracker serves DELETE /api/v1/users/{id}/trackers/{trackerID}.
func (a *API) DeleteTracker(w http.ResponseWriter, r *http.Request) {
	if err := a.trackers.Delete(r.Context(), r.PathValue("id"), r.PathValue("trackerID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func trackerResponse(res *command.AddictionResult, name string) TrackerResponse {
	out := TrackerResponse{
		Outcome:    res.Outcome,
		Message:    res.Message(name),
		CleanHours: res.CleanHours,
		NewRecord:  res.NewRecord,
		Change:     changeDTO(res.Change),
	}
	if res.Tracker != nil {
		out.Tracker = trackerDTO(res.Tracker, time.Now())
	}
	return out
}

func trackerDTO(t *ledger.AddictionTracker, now time.Time) *query.TrackerDTO {
	days := progression.DaysClean(t.LastRelapseAt, now)
	return &query.TrackerDTO{
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

// fail maps domain errors to status codes.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", errorMessage(err))
	case shared.IsValidation(err):
		writeError(w, http.StatusBadRequest, "invalid_request", errorMessage(err))
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "cancelled", "request cancelled")
	default:
		a.logger.Error("dashboard api error",
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

func errorMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
