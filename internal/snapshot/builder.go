// Package snapshot assembles normalized matches into immutable snapshots and
// holds the current ones for concurrent readers.
package snapshot

import (
	"time"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Build concatenates the match groups in the order given, derives the summary
// from the result and stamps builtAt. Callers pass live groups before pregame
// ones. Ids colliding across groups are kept as they are.
func Build(groups [][]domain.Match, builtAt time.Time) *domain.Snapshot {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	matches := make([]domain.Match, 0, total)
	for _, g := range groups {
		matches = append(matches, g...)
	}
	return &domain.Snapshot{
		Timestamp: builtAt,
		Matches:   matches,
		Summary:   Summarize(matches),
	}
}

// Summarize derives the aggregate counts of a match list.
func Summarize(matches []domain.Match) domain.Summary {
	s := domain.Summary{TotalMatches: len(matches)}
	sports := make(map[string]struct{})
	for _, m := range matches {
		if m.LiveFields.IsLive {
			s.LiveMatches++
		} else {
			s.PregameMatches++
		}
		sports[m.Sport] = struct{}{}
	}
	s.SportsProcessed = len(sports)
	return s
}
