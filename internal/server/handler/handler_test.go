package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livefeed/internal/domain"
	"github.com/alanyoungcy/livefeed/internal/snapshot"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testStore() *snapshot.Store {
	ms := []domain.Match{
		{ID: "l1", Sport: "Tennis", SportCode: "TEN", Teams: domain.Teams{Home: "A", Away: "B"}, LiveFields: domain.LiveFields{IsLive: true}},
		{ID: "p1", Sport: "Tennis", SportCode: "TEN", Teams: domain.Teams{Home: "C", Away: "D"}},
		{ID: "p2", Sport: "Soccer", Teams: domain.Teams{Home: "E", Away: "F"}},
	}
	return snapshot.NewStore(snapshot.Build([][]domain.Match{ms}, t0))
}

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func serve(t *testing.T, pattern string, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestListMatches(t *testing.T) {
	h := NewFeedHandler(testStore(), testLogger())
	w := serve(t, "GET /api/matches", h.ListMatches, "/api/matches")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	view := decode[domain.SnapshotView](t, w)
	assert.Equal(t, "2026-03-01T12:00:00Z", view.Timestamp)
	assert.Len(t, view.Matches, 3)
	assert.Equal(t, domain.Summary{TotalMatches: 3, LiveMatches: 1, PregameMatches: 2, SportsProcessed: 2}, view.Summary)
}

func TestListMatches_EmptySnapshotHasEmptyList(t *testing.T) {
	h := NewFeedHandler(snapshot.NewStore(snapshot.Build(nil, t0)), testLogger())
	w := serve(t, "GET /api/matches", h.ListMatches, "/api/matches")
	assert.JSONEq(t, `{"timestamp":"2026-03-01T12:00:00Z","matches":[],"summary":{"totalMatches":0,"liveMatches":0,"pregameMatches":0,"sportsProcessed":0}}`, w.Body.String())
}

func TestListSports(t *testing.T) {
	h := NewFeedHandler(testStore(), testLogger())
	w := serve(t, "GET /api/sports", h.ListSports, "/api/sports")

	resp := decode[sportsResponse](t, w)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, []domain.SportBreakdown{
		{Name: "Tennis", Code: "TEN", Count: 2, LiveCount: 1},
		{Name: "Soccer", Count: 1},
	}, resp.Sports)

	empty := NewFeedHandler(snapshot.NewStore(snapshot.Build(nil, t0)), testLogger())
	w = serve(t, "GET /api/sports", empty.ListSports, "/api/sports")
	assert.JSONEq(t, `{"sports":[],"total":0}`, w.Body.String())
}

func TestGetMatch(t *testing.T) {
	h := NewFeedHandler(testStore(), testLogger())

	w := serve(t, "GET /api/matches/{id}", h.GetMatch, "/api/matches/p1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C", decode[domain.Match](t, w).Teams.Home)

	w = serve(t, "GET /api/matches/{id}", h.GetMatch, "/api/matches/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"match not found"}`, w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(testStore(), fixedCount(4), testLogger())
	w := serve(t, "GET /health", h.HealthCheck, "/health")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[healthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 4, resp.Connections)
	assert.Equal(t, 3, resp.CachedMatches)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.SnapshotBuilt)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}

type stubHistory struct {
	entries []domain.HistoryEntry
	err     error
	asked   int
}

func (s *stubHistory) Recent(_ context.Context, n int) ([]domain.HistoryEntry, error) {
	s.asked = n
	return s.entries, s.err
}

func TestListHistory(t *testing.T) {
	src := &stubHistory{entries: []domain.HistoryEntry{{ID: "a", Status: "Removed"}, {ID: "b", Status: "Removed"}}}
	h := NewHistoryHandler(src, 0, testLogger())

	w := serve(t, "GET /api/history", h.ListHistory, "/api/history")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[historyResponse](t, w)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "a", resp.Matches[0].ID)
	assert.Equal(t, domain.DefaultHistoryWindow, src.asked)

	serve(t, "GET /api/history", h.ListHistory, "/api/history?limit=5")
	assert.Equal(t, 5, src.asked)

	serve(t, "GET /api/history", h.ListHistory, "/api/history?limit=-3")
	assert.Equal(t, domain.DefaultHistoryWindow, src.asked)

	serve(t, "GET /api/history", h.ListHistory, "/api/history?limit=100000")
	assert.Equal(t, maxHistoryLimit, src.asked)
}

func TestListHistory_BackendFailureDegrades(t *testing.T) {
	h := NewHistoryHandler(&stubHistory{err: errors.New("redis down")}, 20, testLogger())
	w := serve(t, "GET /api/history", h.ListHistory, "/api/history")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[historyResponse](t, w)
	assert.Empty(t, resp.Matches)
	assert.Equal(t, 0, resp.Count)
	assert.Equal(t, "history unavailable", resp.Error)
	assert.Contains(t, w.Body.String(), `"historical_matches":[]`)
}

func TestGetInfo(t *testing.T) {
	h := NewInfoHandler("livefeed", "1.2.3")
	w := serve(t, "GET /{$}", h.GetInfo, "/")

	resp := decode[map[string]any](t, w)
	assert.Equal(t, "livefeed", resp["message"])
	assert.Equal(t, "1.2.3", resp["version"])
	assert.Equal(t, "/ws", resp["endpoints"].(map[string]any)["websocket"])

	w = serve(t, "GET /{$}", h.GetInfo, "/other")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
