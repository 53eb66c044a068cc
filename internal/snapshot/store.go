package snapshot

import (
	"sync/atomic"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Store holds the most recently built and the most recently published
// snapshot. The poll loop is the only writer; any number of goroutines may
// read. Readers get a shared pointer and must not modify it.
type Store struct {
	latest    atomic.Pointer[domain.Snapshot]
	published atomic.Pointer[domain.Snapshot]
}

// NewStore returns a Store seeded with an empty snapshot so readers never
// see nil.
func NewStore(empty *domain.Snapshot) *Store {
	s := &Store{}
	s.latest.Store(empty)
	s.published.Store(empty)
	return s
}

// SetLatest records a freshly built snapshot.
func (s *Store) SetLatest(snap *domain.Snapshot) { s.latest.Store(snap) }

// SetPublished records a snapshot that has been sent to subscribers.
func (s *Store) SetPublished(snap *domain.Snapshot) {
	s.latest.Store(snap)
	s.published.Store(snap)
}

// Latest returns the most recently built snapshot, published or not.
func (s *Store) Latest() *domain.Snapshot { return s.latest.Load() }

// Published returns the most recently published snapshot.
func (s *Store) Published() *domain.Snapshot { return s.published.Load() }
