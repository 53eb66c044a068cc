package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ConnectionCounter reports the number of open subscriber connections.
type ConnectionCounter interface {
	Count() int
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	snaps  SnapshotSource
	conns  ConnectionCounter
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(snaps SnapshotSource, conns ConnectionCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{snaps: snaps, conns: conns, logger: logger}
}

type healthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Connections   int    `json:"connections"`
	CachedMatches int    `json:"cached_matches"`
	SnapshotBuilt string `json:"snapshot_built,omitempty"`
}

// HealthCheck reports that the process is serving, with connection and cache
// counts.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := latest(h.snaps)
	resp := healthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Connections:   h.conns.Count(),
		CachedMatches: len(snap.Matches),
	}
	if !snap.Timestamp.IsZero() {
		resp.SnapshotBuilt = snap.TimestampString()
	}
	writeJSON(w, http.StatusOK, resp)
}
