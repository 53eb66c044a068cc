// Package normalize maps raw collector records of every source variant into
// the canonical domain.Match.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Normalize converts one raw record using the mapping table of its variant.
// The result depends only on the record, so normalizing the same record twice
// yields identical output. Records that fail validation return a
// *domain.RecordInvalidError.
func Normalize(raw domain.RawRecord, variant domain.SourceVariant) (domain.Match, error) {
	fm, ok := mappings[variant]
	if !ok {
		return domain.Match{}, fmt.Errorf("normalize: unknown variant %q", variant)
	}
	f := raw.Fields
	if f == nil {
		f = map[string]any{}
	}

	m := domain.Match{
		ID:        firstString(f, fm.id, ""),
		Sport:     firstString(f, fm.sport, ""),
		SportCode: firstString(f, fm.sportCode, ""),
		League:    firstString(f, fm.league, ""),
		Teams: domain.Teams{
			Home: resolveTeam(f, fm.home, homeFallback),
			Away: resolveTeam(f, fm.away, awayFallback),
		},
		Scores: domain.Scores{
			Home: orDefault(firstString(f, fm.scoreHome, ""), "0"),
			Away: orDefault(firstString(f, fm.scoreAway, ""), "0"),
		},
		LiveFields: domain.LiveFields{
			IsLive: firstBool(f, fm.isLive),
			Status: orDefault(firstString(f, fm.status, ""), fm.defaultStatus),
			Time:   orDefault(firstString(f, fm.time, ""), fm.defaultTime),
			Date:   firstString(f, fm.date, ""),
		},
		Odds: extractOdds(f, fm.oddsFrom),
	}

	if fm.groupAsSport && raw.Group != "" {
		m.Sport = orDefault(m.Sport, raw.Group)
		m.SportCode = orDefault(m.SportCode, raw.Group)
		m.League = orDefault(m.League, raw.Group)
	}
	m.Sport = orDefault(m.Sport, fm.defaultSport)

	if m.ID == "" {
		m.ID = hashID(f, fm)
	}
	if fm.rawOdds != nil {
		m.RawOdds = fm.rawOdds(f)
	}
	if fm.markets != nil {
		m.Markets = fm.markets(f, m.Odds)
	}
	m.Timestamp = recordTimestamp(f, fm.timestamp, raw)

	if missing := validate(m); len(missing) > 0 {
		return domain.Match{}, &domain.RecordInvalidError{
			Variant: variant,
			Index:   raw.Index,
			Missing: missing,
		}
	}
	return m, nil
}

// validate lists the required fields that are still empty or placeholders.
func validate(m domain.Match) []string {
	var missing []string
	if m.ID == "" {
		missing = append(missing, "id")
	}
	if domain.IsPlaceholder(m.Teams.Home) {
		missing = append(missing, "teams.home")
	}
	if domain.IsPlaceholder(m.Teams.Away) {
		missing = append(missing, "teams.away")
	}
	return missing
}

func resolveTeam(f map[string]any, candidates, fallback []string) string {
	if team := firstString(f, candidates, domain.PlaceholderTeam); team != "" {
		return team
	}
	return firstString(f, fallback, domain.PlaceholderTeam)
}

// hashID derives a stable id from the variant's identifying fields. Keys of
// the marshalled map are sorted, so the digest does not depend on field order
// in the source.
func hashID(f map[string]any, fm fieldMap) string {
	stable := make(map[string]string, len(fm.hashOf))
	for _, path := range fm.hashOf {
		if v, ok := lookup(f, path); ok {
			stable[path] = stringify(v)
		}
	}
	if len(stable) == 0 {
		return ""
	}
	b, err := json.Marshal(stable)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	prefix := orDefault(firstString(f, fm.hashCode, ""), "UNK")
	return prefix + "_" + hex.EncodeToString(sum[:8])
}

func recordTimestamp(f map[string]any, paths []string, raw domain.RawRecord) string {
	if ts := firstString(f, paths, ""); ts != "" {
		return ts
	}
	if raw.EnvelopeTimestamp != "" {
		return raw.EnvelopeTimestamp
	}
	observed := raw.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return observed.UTC().Format(time.RFC3339Nano)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Recorder receives per-record outcomes.
type Recorder interface {
	RecordAccepted(variant string)
	RecordRejected(variant string, missing []string)
}

// Normalizer normalizes whole source results, logging and counting every
// rejected record.
type Normalizer struct {
	logger   *slog.Logger
	recorder Recorder
}

// New creates a Normalizer. recorder may be nil.
func New(logger *slog.Logger, recorder Recorder) *Normalizer {
	return &Normalizer{logger: logger, recorder: recorder}
}

// Stats summarizes one batch.
type Stats struct {
	Accepted int
	Rejected int
}

// NormalizeSource normalizes every record of a successful source read, in
// order. Invalid records are dropped with a warning naming the missing fields.
func (n *Normalizer) NormalizeSource(res domain.SourceResult) ([]domain.Match, Stats) {
	var stats Stats
	matches := make([]domain.Match, 0, len(res.Records))
	variant := res.Spec.Variant

	for _, raw := range res.Records {
		m, err := Normalize(raw, variant)
		if err != nil {
			stats.Rejected++
			var missing []string
			var invalid *domain.RecordInvalidError
			if errors.As(err, &invalid) {
				missing = invalid.Missing
			}
			n.logger.Warn("normalize: record rejected",
				slog.String("source", res.Spec.Name),
				slog.String("variant", string(variant)),
				slog.Int("index", raw.Index),
				slog.Any("missing", missing),
			)
			if n.recorder != nil {
				n.recorder.RecordRejected(string(variant), missing)
			}
			continue
		}
		stats.Accepted++
		if n.recorder != nil {
			n.recorder.RecordAccepted(string(variant))
		}
		matches = append(matches, m)
	}

	if stats.Rejected > 0 {
		n.logger.Info("normalize: source processed",
			slog.String("source", res.Spec.Name),
			slog.Int("accepted", stats.Accepted),
			slog.Int("total", len(res.Records)),
		)
	}
	return matches, stats
}
