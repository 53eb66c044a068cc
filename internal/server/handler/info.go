package handler

import "net/http"

// InfoHandler describes the service at the root path.
type InfoHandler struct {
	Name    string
	Version string
}

// NewInfoHandler creates an InfoHandler.
func NewInfoHandler(name, version string) *InfoHandler {
	return &InfoHandler{Name: name, Version: version}
}

// GetInfo responds with the service name, version and endpoint map.
// GET /{$}
func (h *InfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": h.Name,
		"version": h.Version,
		"endpoints": map[string]string{
			"matches":   "/api/matches",
			"sports":    "/api/sports",
			"match":     "/api/matches/{id}",
			"history":   "/api/history",
			"websocket": "/ws",
			"health":    "/health",
			"metrics":   "/metrics",
		},
	})
}
