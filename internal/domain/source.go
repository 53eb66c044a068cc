package domain

import (
	"context"
	"fmt"
	"time"
)

// SourceVariant names a raw schema shape produced by an upstream collector.
type SourceVariant string

const (
	VariantLive              SourceVariant = "live"
	VariantPregameSportsData SourceVariant = "pregame-v2-sportsData"
	VariantPregameGames      SourceVariant = "pregame-v1-games"
	VariantPregameLegacy     SourceVariant = "pregame-legacy"
)

// ParseSourceVariant validates a configured variant name.
func ParseSourceVariant(s string) (SourceVariant, error) {
	switch v := SourceVariant(s); v {
	case VariantLive, VariantPregameSportsData, VariantPregameGames, VariantPregameLegacy:
		return v, nil
	default:
		return "", fmt.Errorf("unknown source variant %q", s)
	}
}

// IsLive reports whether records of this variant describe in-play matches.
func (v SourceVariant) IsLive() bool { return v == VariantLive }

// SourceSpec is one configured upstream location.
type SourceSpec struct {
	Name     string
	Variant  SourceVariant
	Location string
	// Fallback sources are only consulted when every non-fallback pregame
	// source is unavailable.
	Fallback bool
}

// RawRecord is a single undecoded record as the collector wrote it, plus the
// envelope context the normalizer may fall back on.
type RawRecord struct {
	Fields map[string]any
	// Group is the enclosing key for grouped payloads (the sport name under
	// sports_data), empty otherwise.
	Group string
	// Index is the record's position within its source.
	Index int
	// EnvelopeTimestamp is the file-level timestamp, if the payload carries one.
	EnvelopeTimestamp string
	// ObservedAt is when the reader loaded the record.
	ObservedAt time.Time
}

// SourceStatus is the outcome of reading one source.
type SourceStatus string

const (
	SourceOK          SourceStatus = "ok"
	SourceUnavailable SourceStatus = "unavailable"
	SourceCorrupt     SourceStatus = "corrupt"
	SourceSkipped     SourceStatus = "skipped"
)

// SourceResult is what the reader returns for one source.
type SourceResult struct {
	Spec    SourceSpec
	Status  SourceStatus
	Records []RawRecord
	ModTime time.Time
	Err     error
}

// ObjectInfo describes a stored source object.
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// ObjectStore is the read side of a storage backend holding source payloads.
// Implementations return an error wrapping ErrNotFound for missing objects.
type ObjectStore interface {
	Stat(ctx context.Context, location string) (ObjectInfo, error)
	ReadAll(ctx context.Context, location string) ([]byte, error)
}
