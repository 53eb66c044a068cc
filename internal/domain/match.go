package domain

import "time"

// PlaceholderTeam is the sentinel collectors write when a side is not known yet.
const PlaceholderTeam = "TBD"

// Market keys recognised in Match.Odds. Anything else is dropped during
// normalization.
const (
	MarketSpread    = "spread"
	MarketTotal     = "total"
	MarketMoneyline = "moneyline"
)

// KnownMarkets lists the market keys in their canonical display order.
var KnownMarkets = []string{MarketSpread, MarketTotal, MarketMoneyline}

// Teams holds the two sides of a match.
type Teams struct {
	Home string `json:"home"`
	Away string `json:"away"`
}

// Scores holds the current score per side as display strings.
type Scores struct {
	Home string `json:"home"`
	Away string `json:"away"`
}

// LiveFields describes the in-play state of a match.
type LiveFields struct {
	IsLive bool   `json:"isLive"`
	Status string `json:"status"`
	Time   string `json:"time"`
	Date   string `json:"date"`
}

// OddsPair is an ordered pair of formatted prices: home/away for spread and
// moneyline, over/under for totals.
type OddsPair [2]string

// Odds maps a known market key to its formatted pair.
type Odds map[string]OddsPair

// Match is the canonical record every source variant is normalized into.
type Match struct {
	ID         string     `json:"id"`
	Sport      string     `json:"sport"`
	SportCode  string     `json:"sportCode"`
	League     string     `json:"league"`
	Teams      Teams      `json:"teams"`
	Scores     Scores     `json:"scores"`
	LiveFields LiveFields `json:"liveFields"`
	Odds       Odds       `json:"odds"`
	RawOdds    any        `json:"rawOdds,omitempty"`
	Markets    any        `json:"markets,omitempty"`
	Timestamp  string     `json:"timestamp"`
}

// IsPlaceholder reports whether a team value counts as unresolved.
func IsPlaceholder(team string) bool {
	return team == "" || team == PlaceholderTeam
}

// Summary carries the aggregate counts of a Snapshot.
type Summary struct {
	TotalMatches    int `json:"totalMatches"`
	LiveMatches     int `json:"liveMatches"`
	PregameMatches  int `json:"pregameMatches"`
	SportsProcessed int `json:"sportsProcessed"`
}

// Snapshot is one immutable, fully assembled view of all known matches. It is
// never mutated after it has been built; consumers share the pointer.
type Snapshot struct {
	Timestamp time.Time `json:"-"`
	Matches   []Match   `json:"matches"`
	Summary   Summary   `json:"summary"`
}

// TimestampString renders the build time in the ISO-8601 form used on the wire.
func (s *Snapshot) TimestampString() string {
	return s.Timestamp.UTC().Format(time.RFC3339Nano)
}

// SnapshotView is the JSON shape of a Snapshot on the wire and in the API.
type SnapshotView struct {
	Timestamp string  `json:"timestamp"`
	Matches   []Match `json:"matches"`
	Summary   Summary `json:"summary"`
}

// View returns the wire representation of s.
func (s *Snapshot) View() SnapshotView {
	matches := s.Matches
	if matches == nil {
		matches = []Match{}
	}
	return SnapshotView{
		Timestamp: s.TimestampString(),
		Matches:   matches,
		Summary:   s.Summary,
	}
}

// Selection is one priced outcome inside a MarketView.
type Selection struct {
	Name string `json:"name"`
	Odds string `json:"odds"`
}

// MarketView is the display form of a known market, derived for sources that
// do not ship their own markets payload.
type MarketView struct {
	Name       string      `json:"name"`
	Selections []Selection `json:"selections"`
}

// Find returns the match with the given id.
func (s *Snapshot) Find(id string) (Match, bool) {
	for _, m := range s.Matches {
		if m.ID == id {
			return m, true
		}
	}
	return Match{}, false
}

// SportBreakdown is the per-sport aggregate served by the sports endpoint.
type SportBreakdown struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Count     int    `json:"count"`
	LiveCount int    `json:"liveCount"`
}

// Sports groups the snapshot's matches by sport, in first-seen order.
func (s *Snapshot) Sports() []SportBreakdown {
	index := make(map[string]int)
	var out []SportBreakdown
	for _, m := range s.Matches {
		i, ok := index[m.Sport]
		if !ok {
			i = len(out)
			index[m.Sport] = i
			out = append(out, SportBreakdown{Name: m.Sport, Code: m.SportCode})
		}
		out[i].Count++
		if m.LiveFields.IsLive {
			out[i].LiveCount++
		}
	}
	return out
}
