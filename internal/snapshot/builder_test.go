package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

func match(id, sport string, live bool) domain.Match {
	return domain.Match{
		ID:         id,
		Sport:      sport,
		Teams:      domain.Teams{Home: "H", Away: "A"},
		LiveFields: domain.LiveFields{IsLive: live},
	}
}

func TestBuild_OrderAndSummary(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	live := []domain.Match{match("l1", "Basketball", true), match("l2", "Soccer", true)}
	pregame := []domain.Match{match("p1", "Soccer", false), match("l1", "Basketball", false)}

	snap := Build([][]domain.Match{live, pregame}, at)

	var ids []string
	for _, m := range snap.Matches {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"l1", "l2", "p1", "l1"}, ids)
	assert.Equal(t, domain.Summary{
		TotalMatches:    4,
		LiveMatches:     2,
		PregameMatches:  2,
		SportsProcessed: 2,
	}, snap.Summary)
	assert.Equal(t, at, snap.Timestamp)
}

func TestBuild_SummaryMatchesDerivedCounts(t *testing.T) {
	groups := [][]domain.Match{
		{match("a", "X", true), match("b", "Y", false), match("c", "X", true)},
		nil,
		{match("d", "Z", false)},
	}
	snap := Build(groups, time.Now())

	live := 0
	for _, m := range snap.Matches {
		if m.LiveFields.IsLive {
			live++
		}
	}
	assert.Equal(t, len(snap.Matches), snap.Summary.TotalMatches)
	assert.Equal(t, live, snap.Summary.LiveMatches)
	assert.Equal(t, len(snap.Matches)-live, snap.Summary.PregameMatches)
}

func TestBuild_EmptyProducesEmptyList(t *testing.T) {
	snap := Build(nil, time.Now())
	require.NotNil(t, snap.Matches)
	assert.Empty(t, snap.Matches)
	assert.Equal(t, domain.Summary{}, snap.Summary)
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	group := []domain.Match{match("a", "X", false)}
	snap := Build([][]domain.Match{group}, time.Now())
	group[0].ID = "changed"
	assert.Equal(t, "a", snap.Matches[0].ID)
}

func TestStore(t *testing.T) {
	empty := Build(nil, time.Time{})
	s := NewStore(empty)
	assert.Same(t, empty, s.Latest())
	assert.Same(t, empty, s.Published())

	built := Build([][]domain.Match{{match("a", "X", false)}}, time.Now())
	s.SetLatest(built)
	assert.Same(t, built, s.Latest())
	assert.Same(t, empty, s.Published())

	s.SetPublished(built)
	assert.Same(t, built, s.Published())
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(Build(nil, time.Time{}))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Latest()
				assert.Equal(t, len(snap.Matches), snap.Summary.TotalMatches)
			}
		}()
	}
	for i := 0; i < 200; i++ {
		s.SetPublished(Build([][]domain.Match{{match("a", "X", i%2 == 0)}}, time.Now()))
	}
	wg.Wait()
}
