package normalize

import "github.com/alanyoungcy/livefeed/internal/domain"

// fieldMap is the extraction table for one source variant. Every slice is a
// priority-ordered list of dotted field paths; the first path yielding a
// usable value wins.
type fieldMap struct {
	id        []string
	hashOf    []string
	hashCode  []string
	sport     []string
	sportCode []string
	league    []string
	home      []string
	away      []string
	scoreHome []string
	scoreAway []string
	isLive    []string
	status    []string
	time      []string
	date      []string
	timestamp []string

	// oddsFrom lists candidate containers for the odds; the first one that is a
	// non-empty object is used exclusively.
	oddsFrom []string

	// groupAsSport lets the enclosing group key (sports_data key) stand in for
	// sport, sportCode and league when the record itself is silent.
	groupAsSport bool

	defaultSport  string
	defaultStatus string
	defaultTime   string

	rawOdds func(fields map[string]any) any
	markets func(fields map[string]any, odds domain.Odds) any
}

// Team fields consulted for every variant when the mapped candidate is empty
// or still the placeholder.
var (
	homeFallback = []string{"player1_team1", "team1"}
	awayFallback = []string{"player2_team2", "team2"}
)

var liveMap = fieldMap{
	id:            []string{"id", "game_id"},
	hashOf:        []string{"teams.home", "teams.away"},
	hashCode:      []string{"sport_code", "code"},
	sport:         []string{"sport"},
	sportCode:     []string{"sport_code", "code"},
	league:        []string{"league", "competition"},
	home:          []string{"teams.home"},
	away:          []string{"teams.away"},
	scoreHome:     []string{"scores.home"},
	scoreAway:     []string{"scores.away"},
	isLive:        []string{"live_fields.is_live", "is_live"},
	status:        []string{"live_fields.status", "status"},
	time:          []string{"live_fields.time", "time"},
	date:          []string{"live_fields.date", "date"},
	timestamp:     []string{"timestamp"},
	oddsFrom:      []string{"markets", "odds"},
	defaultSport:  "Unknown",
	defaultStatus: "Scheduled",
	rawOdds: func(fields map[string]any) any {
		return map[string]any{
			"odds":    valueOr(fields, "odds", map[string]any{}),
			"markets": valueOr(fields, "markets", map[string]any{}),
		}
	},
	markets: func(fields map[string]any, _ domain.Odds) any {
		return valueOr(fields, "markets", []any{})
	},
}

// pregameBase carries the mapping shared by every pregame variant; the
// variant tables below override ids and team fields.
var pregameBase = fieldMap{
	hashOf:        []string{"sport", "team1", "team2", "player1_team1", "player2_team2", "date", "time"},
	hashCode:      []string{"sport"},
	sport:         []string{"sport"},
	sportCode:     []string{"sport_code", "sport"},
	timestamp:     []string{"timestamp"},
	time:          []string{"time"},
	date:          []string{"date"},
	oddsFrom:      []string{"odds"},
	defaultSport:  "Unknown",
	defaultStatus: "Scheduled",
	defaultTime:   domain.PlaceholderTeam,
	rawOdds: func(fields map[string]any) any {
		return valueOr(fields, "odds", map[string]any{})
	},
	markets: func(_ map[string]any, odds domain.Odds) any {
		return marketViews(odds)
	},
}

var mappings = map[domain.SourceVariant]fieldMap{
	domain.VariantLive: liveMap,
	domain.VariantPregameSportsData: pregame(func(m *fieldMap) {
		m.id = []string{"game_id", "id", "fixture_id"}
		m.home = []string{"team1", "player1_team1"}
		m.away = []string{"team2", "player2_team2"}
		m.league = []string{"league"}
		m.groupAsSport = true
	}),
	domain.VariantPregameGames: pregame(func(m *fieldMap) {
		m.id = []string{"fixture_id", "game_id", "id"}
		m.home = []string{"team1", "player1_team1"}
		m.away = []string{"team2", "player2_team2"}
		m.league = []string{"league", "date"}
	}),
	domain.VariantPregameLegacy: pregame(func(m *fieldMap) {
		m.id = []string{"id", "game_id", "fixture_id"}
		m.home = []string{"player1_team1", "team1"}
		m.away = []string{"player2_team2", "team2"}
		m.league = []string{"league", "date"}
		m.groupAsSport = true
	}),
}

func pregame(override func(*fieldMap)) fieldMap {
	m := pregameBase
	override(&m)
	return m
}

func valueOr(fields map[string]any, path string, def any) any {
	if v, ok := lookup(fields, path); ok {
		return v
	}
	return def
}
