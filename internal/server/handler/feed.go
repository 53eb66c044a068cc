package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// FeedHandler serves read-only views of the current snapshot.
type FeedHandler struct {
	snaps  SnapshotSource
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(snaps SnapshotSource, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{snaps: snaps, logger: logger}
}

// ListMatches returns the whole snapshot in its wire shape.
// GET /api/matches
func (h *FeedHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, latest(h.snaps).View())
}

type sportsResponse struct {
	Sports []domain.SportBreakdown `json:"sports"`
	Total  int                     `json:"total"`
}

// ListSports returns per-sport match and live counts.
// GET /api/sports
func (h *FeedHandler) ListSports(w http.ResponseWriter, r *http.Request) {
	sports := latest(h.snaps).Sports()
	if sports == nil {
		sports = []domain.SportBreakdown{}
	}
	writeJSON(w, http.StatusOK, sportsResponse{Sports: sports, Total: len(sports)})
}

// GetMatch returns a single match by id.
// GET /api/matches/{id}
func (h *FeedHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}

	m, ok := latest(h.snaps).Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
