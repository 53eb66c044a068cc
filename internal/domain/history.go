package domain

import "context"

// DefaultHistoryWindow is the number of entries the history endpoint returns
// when the caller does not ask for a specific count.
const DefaultHistoryWindow = 20

// HistoryEntry is a match that has left the feed.
type HistoryEntry struct {
	ID          string `json:"id"`
	Sport       string `json:"sport"`
	Teams       Teams  `json:"teams"`
	Time        string `json:"time"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	RemovalTime string `json:"removalTime"`
}

// HistorySource returns the most recent history entries, oldest first.
type HistorySource interface {
	Recent(ctx context.Context, n int) ([]HistoryEntry, error)
}

// HistoryStore is a writable history backend. Append keeps the backend bounded
// to its configured retention.
type HistoryStore interface {
	HistorySource
	Append(ctx context.Context, entries []HistoryEntry) error
}

// SnapshotSink receives every published Snapshot.
type SnapshotSink interface {
	Publish(ctx context.Context, snap *Snapshot) error
}
