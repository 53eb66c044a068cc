package normalize

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

var observed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(t *testing.T, raw string) domain.RawRecord {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	require.NoError(t, dec.Decode(&fields))
	return domain.RawRecord{Fields: fields, ObservedAt: observed}
}

type recorderStub struct {
	accepted int
	rejected [][]string
}

func (r *recorderStub) RecordAccepted(string) { r.accepted++ }
func (r *recorderStub) RecordRejected(_ string, missing []string) {
	r.rejected = append(r.rejected, missing)
}

func TestNormalizeSource_DropsRecordMissingAwayTeam(t *testing.T) {
	rec := &recorderStub{}
	var logs bytes.Buffer
	n := New(slog.New(slog.NewJSONHandler(&logs, nil)), rec)

	good := record(t, `{"id":"m1","sport":"Basketball","teams":{"home":"Lakers","away":"Celtics"}}`)
	bad := record(t, `{"id":"m2","sport":"Basketball","teams":{"home":"Heat"}}`)
	bad.Index = 1

	matches, stats := n.NormalizeSource(domain.SourceResult{
		Spec:    domain.SourceSpec{Name: "live", Variant: domain.VariantLive},
		Status:  domain.SourceOK,
		Records: []domain.RawRecord{good, bad},
	})

	require.Len(t, matches, 1)
	assert.Equal(t, "m1", matches[0].ID)
	assert.Equal(t, Stats{Accepted: 1, Rejected: 1}, stats)
	assert.Equal(t, 1, rec.accepted)
	assert.Equal(t, [][]string{{"teams.away"}}, rec.rejected)
	assert.Contains(t, logs.String(), "normalize: record rejected")
	assert.Contains(t, logs.String(), "teams.away")
}

func TestNormalize_NestedSpreadOdds(t *testing.T) {
	raw := record(t, `{
		"fixture_id": "g-1",
		"sport": "NFL",
		"team1": "Chiefs",
		"team2": "Bills",
		"odds": {
			"spread": {"home": {"odds": "-110", "line": "-3.5"}, "away": {"odds": "-110", "line": "+3.5"}}
		}
	}`)

	m, err := Normalize(raw, domain.VariantPregameGames)
	require.NoError(t, err)

	assert.Equal(t, domain.OddsPair{"-3.5 -110", "+3.5 -110"}, m.Odds[domain.MarketSpread])
	assert.Len(t, m.Odds, 1)
}

func TestNormalize_OddsShapes(t *testing.T) {
	tests := []struct {
		name string
		odds string
		want domain.Odds
	}{
		{
			name: "ordered pair list",
			odds: `{"moneyline": [" +150 ", -170], "total": ["o 44.5", "u 44.5"]}`,
			want: domain.Odds{
				domain.MarketMoneyline: {"+150", "-170"},
				domain.MarketTotal:     {"o 44.5", "u 44.5"},
			},
		},
		{
			name: "nested total gets over/under prefix",
			odds: `{"total": {"over": {"line": 220.5, "odds": -110}, "under": {"line": 220.5, "odds": -105}}}`,
			want: domain.Odds{domain.MarketTotal: {"O 220.5 -110", "U 220.5 -105"}},
		},
		{
			name: "nested without line uses odds only",
			odds: `{"moneyline": {"home": {"odds": "+120"}, "away": {"odds": "-140"}}}`,
			want: domain.Odds{domain.MarketMoneyline: {"+120", "-140"}},
		},
		{
			name: "flat side object",
			odds: `{"spread": {"home": "-7", "away": "+7"}}`,
			want: domain.Odds{domain.MarketSpread: {"-7", "+7"}},
		},
		{
			name: "unknown and incomplete markets are omitted",
			odds: `{"handicap": ["1", "2"], "moneyline": ["+150"], "spread": {"home": "-7"}}`,
			want: domain.Odds{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := record(t, `{"fixture_id":"g","team1":"A","team2":"B","odds":`+tt.odds+`}`)
			m, err := Normalize(raw, domain.VariantPregameGames)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Odds)
		})
	}
}

func TestNormalize_LivePrefersMarketsOverOdds(t *testing.T) {
	raw := record(t, `{
		"id": "l1",
		"teams": {"home": "A", "away": "B"},
		"markets": {"moneyline": {"home": {"odds": "+100"}, "away": {"odds": "-120"}}},
		"odds": {"moneyline": ["+999", "-999"], "spread": ["-1", "+1"]}
	}`)

	m, err := Normalize(raw, domain.VariantLive)
	require.NoError(t, err)

	assert.Equal(t, domain.Odds{domain.MarketMoneyline: {"+100", "-120"}}, m.Odds)
	assert.Equal(t, raw.Fields["markets"], m.Markets)
	rawOdds, ok := m.RawOdds.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, raw.Fields["odds"], rawOdds["odds"])
}

func TestNormalize_LiveFieldsAndDefaults(t *testing.T) {
	raw := record(t, `{
		"game_id": "x9",
		"code": "NBA",
		"competition": "Regular Season",
		"teams": {"home": "Knicks", "away": "Nets"},
		"scores": {"home": 54, "away": "50"},
		"live_fields": {"is_live": true, "time": "Q3 04:12"},
		"status": "In Play"
	}`)

	m, err := Normalize(raw, domain.VariantLive)
	require.NoError(t, err)

	assert.Equal(t, "x9", m.ID)
	assert.Equal(t, "Unknown", m.Sport)
	assert.Equal(t, "NBA", m.SportCode)
	assert.Equal(t, "Regular Season", m.League)
	assert.Equal(t, domain.Scores{Home: "54", Away: "50"}, m.Scores)
	assert.Equal(t, domain.LiveFields{IsLive: true, Status: "In Play", Time: "Q3 04:12"}, m.LiveFields)
	assert.Equal(t, observed.Format(time.RFC3339Nano), m.Timestamp)
}

func TestNormalize_PlaceholderTeamFallsBack(t *testing.T) {
	raw := record(t, `{"id":"p1","teams":{"home":"TBD","away":"Rangers"},"team1":"Celtic"}`)

	m, err := Normalize(raw, domain.VariantLive)
	require.NoError(t, err)
	assert.Equal(t, domain.Teams{Home: "Celtic", Away: "Rangers"}, m.Teams)
}

func TestNormalize_RejectsPlaceholders(t *testing.T) {
	raw := record(t, `{"fixture_id":"g","team1":"TBD","team2":""}`)
	raw.Index = 7

	_, err := Normalize(raw, domain.VariantPregameGames)
	require.ErrorIs(t, err, domain.ErrRecordInvalid)

	var invalid *domain.RecordInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 7, invalid.Index)
	assert.Equal(t, []string{"teams.home", "teams.away"}, invalid.Missing)
}

func TestNormalize_HashIDIsStable(t *testing.T) {
	a := record(t, `{"sport_code":"NHL","teams":{"home":"Oilers","away":"Flames"}}`)
	b := record(t, `{"teams":{"away":"Flames","home":"Oilers"},"sport_code":"NHL","timestamp":"later"}`)

	ma, err := Normalize(a, domain.VariantLive)
	require.NoError(t, err)
	mb, err := Normalize(b, domain.VariantLive)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ma.ID, "NHL_"))
	assert.Equal(t, ma.ID, mb.ID)
}

func TestNormalize_IsDeterministic(t *testing.T) {
	raw := record(t, `{
		"id": "d1",
		"teams": {"home": "A", "away": "B"},
		"markets": {"spread": {"home": {"line": -2, "odds": -110}, "away": {"line": 2, "odds": -110}}, "extra": {"z": 1, "a": 2}}
	}`)

	first, err := Normalize(raw, domain.VariantLive)
	require.NoError(t, err)
	second, err := Normalize(raw, domain.VariantLive)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestNormalize_SportsDataUsesGroupAndEnvelope(t *testing.T) {
	raw := record(t, `{"game_id":"s1","team1":"Arsenal","team2":"Chelsea","time":"15:00","odds":{"moneyline":["2.1","3.4"]}}`)
	raw.Group = "Soccer"
	raw.EnvelopeTimestamp = "2026-03-01T11:59:00"

	m, err := Normalize(raw, domain.VariantPregameSportsData)
	require.NoError(t, err)

	assert.Equal(t, "Soccer", m.Sport)
	assert.Equal(t, "Soccer", m.League)
	assert.False(t, m.LiveFields.IsLive)
	assert.Equal(t, "Scheduled", m.LiveFields.Status)
	assert.Equal(t, "2026-03-01T11:59:00", m.Timestamp)
	assert.Equal(t, []domain.MarketView{{
		Name:       "Moneyline",
		Selections: []domain.Selection{{Name: "Home", Odds: "2.1"}, {Name: "Away", Odds: "3.4"}},
	}}, m.Markets)
}

func TestNormalize_LegacyRecord(t *testing.T) {
	raw := record(t, `{"id":"lg","player1_team1":"Nadal","player2_team2":"Federer","odds":{"spread":["-1.5","+1.5"]}}`)
	raw.Group = "Tennis"

	m, err := Normalize(raw, domain.VariantPregameLegacy)
	require.NoError(t, err)

	assert.Equal(t, domain.Teams{Home: "Nadal", Away: "Federer"}, m.Teams)
	assert.Equal(t, "Tennis", m.Sport)
	assert.Equal(t, domain.PlaceholderTeam, m.LiveFields.Time)
}

func TestNormalize_UnknownVariant(t *testing.T) {
	_, err := Normalize(domain.RawRecord{}, domain.SourceVariant("nope"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRecordInvalid)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeSource_NilRecorder(t *testing.T) {
	n := New(discardLogger(), nil)
	matches, stats := n.NormalizeSource(domain.SourceResult{
		Spec:    domain.SourceSpec{Name: "pregame", Variant: domain.VariantPregameGames},
		Records: []domain.RawRecord{record(t, `{"team1":"A"}`)},
	})
	assert.Empty(t, matches)
	assert.Equal(t, 1, stats.Rejected)
}
