package history

import (
	"context"
	"slices"
	"sync"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// DefaultRetain bounds writable backends when no retention is configured.
const DefaultRetain = 1000

// Memory is an in-process HistoryStore holding at most retain entries.
type Memory struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
	retain  int
}

// NewMemory creates an empty Memory store.
func NewMemory(retain int) *Memory {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Memory{retain: retain}
}

func (m *Memory) Append(_ context.Context, entries []domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	if over := len(m.entries) - m.retain; over > 0 {
		m.entries = slices.Clone(m.entries[over:])
	}
	return nil
}

// Recent returns up to n entries, oldest first.
func (m *Memory) Recent(_ context.Context, n int) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(lastN(m.entries, n)), nil
}

// Prune drops everything but the newest retain entries.
func (m *Memory) Prune(_ context.Context, retain int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	over := len(m.entries) - retain
	if over <= 0 {
		return 0, nil
	}
	m.entries = slices.Clone(m.entries[over:])
	return int64(over), nil
}

func lastN[T any](items []T, n int) []T {
	if n <= 0 {
		n = domain.DefaultHistoryWindow
	}
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
