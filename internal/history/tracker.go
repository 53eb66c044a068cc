// Package history records pregame matches that leave the feed and serves the
// most recent of them back to the API.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// StatusRemoved is the status every history entry carries.
const StatusRemoved = "Removed"

// Tracker is a snapshot sink. It diffs each published snapshot against the
// previous one and appends the pregame matches that disappeared to a store.
// Publish must not be called concurrently.
type Tracker struct {
	store  domain.HistoryStore
	logger *slog.Logger

	prev   map[string]domain.Match
	seeded bool
}

// NewTracker creates a Tracker writing to store.
func NewTracker(store domain.HistoryStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With(slog.String("component", "history")),
		prev:   make(map[string]domain.Match),
	}
}

// Publish implements domain.SnapshotSink. The first snapshot only seeds the
// tracker. When the store rejects the batch the previous view is kept, so the
// same removals are retried with the next snapshot.
func (t *Tracker) Publish(ctx context.Context, snap *domain.Snapshot) error {
	current := pregameByID(snap)
	if !t.seeded {
		t.prev, t.seeded = current, true
		return nil
	}

	removed := Removed(t.prev, current, snap.TimestampString())
	if len(removed) > 0 {
		if err := t.store.Append(ctx, removed); err != nil {
			return fmt.Errorf("history: append %d entries: %w", len(removed), err)
		}
		t.logger.Info("history: matches removed", slog.Int("count", len(removed)))
	}
	t.prev = current
	return nil
}

// Removed returns an entry for every match in prev that is absent from
// current, sorted by id.
func Removed(prev, current map[string]domain.Match, removedAt string) []domain.HistoryEntry {
	var out []domain.HistoryEntry
	for _, id := range sortedKeys(prev) {
		if _, ok := current[id]; ok {
			continue
		}
		out = append(out, EntryFromMatch(prev[id], removedAt))
	}
	return out
}

// EntryFromMatch converts a match into a history entry.
func EntryFromMatch(m domain.Match, removedAt string) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:          m.ID,
		Sport:       m.Sport,
		Teams:       m.Teams,
		Time:        m.LiveFields.Time,
		Date:        m.LiveFields.Date,
		Status:      StatusRemoved,
		RemovalTime: removedAt,
	}
}

func pregameByID(snap *domain.Snapshot) map[string]domain.Match {
	out := make(map[string]domain.Match)
	if snap == nil {
		return out
	}
	for _, m := range snap.Matches {
		if m.LiveFields.IsLive {
			continue
		}
		if _, dup := out[m.ID]; !dup {
			out[m.ID] = m
		}
	}
	return out
}

func sortedKeys(m map[string]domain.Match) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
