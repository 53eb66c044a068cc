package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// HistoryHandler serves the bounded window of matches that left the feed.
type HistoryHandler struct {
	source domain.HistorySource
	window int
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler returning window entries unless
// the caller asks for another count.
func NewHistoryHandler(source domain.HistorySource, window int, logger *slog.Logger) *HistoryHandler {
	if window <= 0 {
		window = domain.DefaultHistoryWindow
	}
	return &HistoryHandler{source: source, window: window, logger: logger}
}

type historyResponse struct {
	Matches    []domain.HistoryEntry `json:"historical_matches"`
	Count      int                   `json:"count"`
	LastUpdate string                `json:"last_update"`
	Error      string                `json:"error,omitempty"`
}

// ListHistory returns the most recent removed matches, oldest first. A failing
// backend degrades to an empty list carrying the error text.
// GET /api/history?limit=20
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{
		Matches:    []domain.HistoryEntry{},
		LastUpdate: time.Now().UTC().Format(time.RFC3339),
	}

	entries, err := h.source.Recent(r.Context(), parseLimit(r, h.window))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list history failed",
			slog.String("error", err.Error()),
		)
		resp.Error = "history unavailable"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if entries != nil {
		resp.Matches = entries
	}
	resp.Count = len(resp.Matches)
	writeJSON(w, http.StatusOK, resp)
}
