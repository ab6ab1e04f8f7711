package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lifeos-hub/lifeos/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateSink processes one Telegram update.
type UpdateSink interface {
	HandleUpdate(ctx context.Context, update *telegram.Update) error
}

// TelegramWebhook receives updates pushed by Telegram.
type TelegramWebhook struct {
	sink    UpdateSink
	secret  []byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewTelegramWebhook creates the webhook handler. An empty secret disables
// the header check.
func NewTelegramWebhook(sink UpdateSink, secret string, logger *slog.Logger) *TelegramWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramWebhook{sink: sink, secret: []byte(secret), timeout: 55 * time.Second, logger: logger}
}

// ServeHTTP handles the update synchronously. Processing errors are logged
// and still answered with 200, since Telegram would redeliver the same update.
func (h *TelegramWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(h.secret) > 0 {
		got := []byte(r.Header.Get(SecretTokenHeader))
		if subtle.ConstantTimeCompare(got, h.secret) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid_secret", "secret token mismatch")
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_update", "update is not valid JSON")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	if err := h.sink.HandleUpdate(ctx, &update); err != nil {
		h.logger.Error("webhook update failed", "update_id", update.UpdateID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
