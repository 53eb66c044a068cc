package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// errEnvelope marks a payload whose top-level shape does not match its
// variant.
var errEnvelope = errors.New("unexpected envelope")

// envelope is the file-level wrapper shared by every collector output. Only
// the keys relevant to the variant are populated.
type envelope struct {
	Matches        json.RawMessage `json:"matches"`
	Games          json.RawMessage `json:"games"`
	SportsData     json.RawMessage `json:"sports_data"`
	Timestamp      json.RawMessage `json:"timestamp"`
	ExtractionInfo struct {
		Timestamp json.RawMessage `json:"timestamp"`
	} `json:"extraction_info"`
}

// decodePayload splits a source payload into raw records according to its
// variant. observedAt is stamped on every record.
func decodePayload(payload []byte, variant domain.SourceVariant, observedAt time.Time) ([]domain.RawRecord, int, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, 0, nil
	}

	// A bare array is accepted for the list-shaped variants.
	if payload[0] == '[' && (variant == domain.VariantLive || variant == domain.VariantPregameGames) {
		return decodeList(payload, "", "", observedAt, 0)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, 0, err
	}

	switch variant {
	case domain.VariantLive:
		return decodeList(env.Matches, "", scalarText(env.Timestamp), observedAt, 0)
	case domain.VariantPregameGames:
		return decodeList(env.Games, "", scalarText(env.Timestamp), observedAt, 0)
	case domain.VariantPregameSportsData:
		ts := scalarText(env.ExtractionInfo.Timestamp)
		if ts == "" {
			ts = scalarText(env.Timestamp)
		}
		return decodeGroups(env.SportsData, ts, observedAt, true)
	case domain.VariantPregameLegacy:
		return decodeGroups(env.SportsData, scalarText(env.Timestamp), observedAt, false)
	default:
		return nil, 0, fmt.Errorf("unknown variant %q", variant)
	}
}

// decodeList decodes a JSON array of objects. Elements that are not objects
// are skipped and counted.
func decodeList(raw json.RawMessage, group, envTS string, observedAt time.Time, offset int) ([]domain.RawRecord, int, error) {
	if isAbsent(raw) {
		return nil, 0, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("%w: expected list: %v", errEnvelope, err)
	}

	records := make([]domain.RawRecord, 0, len(items))
	skipped := 0
	for i, item := range items {
		fields, ok := decodeObject(item)
		if !ok {
			skipped++
			continue
		}
		records = append(records, domain.RawRecord{
			Fields:            fields,
			Group:             group,
			Index:             offset + i,
			EnvelopeTimestamp: envTS,
			ObservedAt:        observedAt,
		})
	}
	return records, skipped, nil
}

// decodeGroups walks a sport-keyed object in document order, so the resulting
// record order is stable across reads. With nestedGames a group may be either
// {"games": [...]} or a bare list; otherwise it must be a list.
func decodeGroups(raw json.RawMessage, envTS string, observedAt time.Time, nestedGames bool) ([]domain.RawRecord, int, error) {
	if isAbsent(raw) {
		return nil, 0, nil
	}
	groups, err := orderedObject(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: sports_data: %v", errEnvelope, err)
	}

	var records []domain.RawRecord
	skipped := 0
	for _, g := range groups {
		list := g.value
		if nestedGames && len(list) > 0 && list[0] == '{' {
			var wrapper struct {
				Games json.RawMessage `json:"games"`
			}
			if err := json.Unmarshal(list, &wrapper); err != nil || isAbsent(wrapper.Games) {
				skipped++
				continue
			}
			list = wrapper.Games
		}
		if len(list) == 0 || list[0] != '[' {
			skipped++
			continue
		}
		recs, n, err := decodeList(list, g.key, envTS, observedAt, len(records)+skipped)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, recs...)
		skipped += n
	}
	return records, skipped, nil
}

type keyedValue struct {
	key   string
	value json.RawMessage
}

// orderedObject decodes the members of a JSON object preserving key order.
func orderedObject(raw json.RawMessage) ([]keyedValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}

	var out []keyedValue
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, keyedValue{key: key, value: bytes.TrimSpace(v)})
	}
	return out, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, false
	}
	return fields, true
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// scalarText renders a JSON string or number as text; anything else is empty.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
