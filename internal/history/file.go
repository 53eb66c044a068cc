package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Fetcher reads raw objects by location. *source.Reader satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileSource serves history from a JSON document written by the collectors.
// The document is a bare list of games, or an object holding one under
// "removed_games" or "games".
type FileSource struct {
	fetcher  Fetcher
	location string
}

// NewFileSource creates a FileSource reading location through fetcher.
func NewFileSource(fetcher Fetcher, location string) *FileSource {
	return &FileSource{fetcher: fetcher, location: location}
}

// Recent returns the last n entries of the document, oldest first. A missing
// document is an empty history.
func (f *FileSource) Recent(ctx context.Context, n int) ([]domain.HistoryEntry, error) {
	payload, err := f.fetcher.Fetch(ctx, f.location)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", f.location, err)
	}

	games, err := decodeGames(payload)
	if err != nil {
		return nil, fmt.Errorf("history: decode %s: %w", f.location, err)
	}

	games = lastN(games, n)
	out := make([]domain.HistoryEntry, 0, len(games))
	for _, g := range games {
		out = append(out, entryFromGame(g, len(out)))
	}
	return out, nil
}

func decodeGames(payload []byte) ([]map[string]any, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}

	var list []any
	switch v := doc.(type) {
	case []any:
		list = v
	case map[string]any:
		if l, ok := v["removed_games"].([]any); ok {
			list = l
		} else if l, ok := v["games"].([]any); ok {
			list = l
		}
	default:
		return nil, fmt.Errorf("unexpected document type %T", doc)
	}

	games := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if g, ok := item.(map[string]any); ok {
			games = append(games, g)
		}
	}
	return games, nil
}

func entryFromGame(g map[string]any, i int) domain.HistoryEntry {
	teams, _ := g["teams"].(map[string]any)
	return domain.HistoryEntry{
		ID:    first(g, "hist_"+strconv.Itoa(i), "game_id", "id", "fixture_id"),
		Sport: first(g, "Unknown", "sport"),
		Teams: domain.Teams{
			Home: firstOf("Unknown", text(teams, "home"), text(g, "team1"), text(g, "player1_team1")),
			Away: firstOf("Unknown", text(teams, "away"), text(g, "team2"), text(g, "player2_team2")),
		},
		Time:        text(g, "time"),
		Date:        text(g, "date"),
		Status:      StatusRemoved,
		RemovalTime: first(g, "", "removal_time", "removed_timestamp", "timestamp"),
	}
}

func first(g map[string]any, def string, keys ...string) string {
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = text(g, k)
	}
	return firstOf(def, vals...)
}

func firstOf(def string, vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return def
}

func text(g map[string]any, key string) string {
	switch v := g[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
