// Package source reads collector output in its native schemas from local
// files or object storage.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Recorder receives the outcome of every source read.
type Recorder interface {
	SourceRead(source, status string)
}

// Reader loads every configured source. It never fails as a whole: each
// source gets its own outcome.
type Reader struct {
	stores   map[string]domain.ObjectStore
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Reader.
type Option func(*Reader)

// WithStore routes locations of the form "<scheme>://..." to store.
func WithStore(scheme string, store domain.ObjectStore) Option {
	return func(r *Reader) { r.stores[scheme] = store }
}

// WithClock overrides the clock used to stamp ObservedAt.
func WithClock(c clockwork.Clock) Option {
	return func(r *Reader) { r.clock = c }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Reader) { r.recorder = rec }
}

// NewReader returns a Reader that serves plain paths and file:// locations
// from the local filesystem.
func NewReader(logger *slog.Logger, opts ...Option) *Reader {
	r := &Reader{
		stores: map[string]domain.ObjectStore{"": FileStore{}, "file": FileStore{}},
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read reads every source in order. Fallback sources are only read when no
// primary pregame source is available; otherwise they are reported as
// skipped.
func (r *Reader) Read(ctx context.Context, specs []domain.SourceSpec) []domain.SourceResult {
	results := make([]domain.SourceResult, len(specs))
	primaryPregame := false

	for i, spec := range specs {
		if spec.Fallback {
			continue
		}
		results[i] = r.ReadSource(ctx, spec)
		if !spec.Variant.IsLive() && results[i].Status != domain.SourceUnavailable {
			primaryPregame = true
		}
	}

	for i, spec := range specs {
		if !spec.Fallback {
			continue
		}
		if primaryPregame {
			results[i] = domain.SourceResult{Spec: spec, Status: domain.SourceSkipped}
			r.record(spec, domain.SourceSkipped)
			continue
		}
		results[i] = r.ReadSource(ctx, spec)
	}
	return results
}

// ReadSource reads and decodes one source. A missing object yields
// SourceUnavailable and an unparsable one SourceCorrupt, both with zero
// records.
func (r *Reader) ReadSource(ctx context.Context, spec domain.SourceSpec) domain.SourceResult {
	res := domain.SourceResult{Spec: spec}
	log := r.logger.With(slog.String("source", spec.Name), slog.String("location", spec.Location))

	store, location, err := r.route(spec.Location)
	if err != nil {
		return r.fail(res, domain.SourceUnavailable, err, log)
	}

	info, err := store.Stat(ctx, location)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug("source: not present")
			res.Status = domain.SourceUnavailable
			res.Err = fmt.Errorf("%w: %s", domain.ErrSourceUnavailable, spec.Name)
			r.record(spec, res.Status)
			return res
		}
		return r.fail(res, domain.SourceUnavailable, err, log)
	}
	res.ModTime = info.ModTime

	payload, err := store.ReadAll(ctx, location)
	if err != nil {
		return r.fail(res, domain.SourceUnavailable, err, log)
	}

	records, skipped, err := decodePayload(payload, spec.Variant, r.clock.Now())
	if err != nil {
		return r.fail(res, domain.SourceCorrupt, err, log)
	}
	if skipped > 0 {
		log.Warn("source: skipped malformed entries", slog.Int("skipped", skipped))
	}

	res.Status = domain.SourceOK
	res.Records = records
	r.record(spec, res.Status)
	log.Debug("source: loaded", slog.Int("records", len(records)))
	return res
}

func (r *Reader) fail(res domain.SourceResult, status domain.SourceStatus, err error, log *slog.Logger) domain.SourceResult {
	sentinel := domain.ErrSourceUnavailable
	if status == domain.SourceCorrupt {
		sentinel = domain.ErrSourceCorrupt
	}
	res.Status = status
	res.Records = nil
	res.Err = fmt.Errorf("%w: %s: %v", sentinel, res.Spec.Name, err)
	log.Warn("source: read failed", slog.String("status", string(status)), slog.String("error", err.Error()))
	r.record(res.Spec, status)
	return res
}

func (r *Reader) record(spec domain.SourceSpec, status domain.SourceStatus) {
	if r.recorder != nil {
		r.recorder.SourceRead(spec.Name, string(status))
	}
}

// route picks the store for a location. Local paths are passed on without
// their file:// prefix; other schemes keep the full location.
func (r *Reader) route(location string) (domain.ObjectStore, string, error) {
	scheme, rest, found := strings.Cut(location, "://")
	if !found {
		return r.stores[""], location, nil
	}
	store, ok := r.stores[scheme]
	if !ok {
		return nil, "", fmt.Errorf("source: no store for scheme %q", scheme)
	}
	if scheme == "file" {
		return store, rest, nil
	}
	return store, location, nil
}

// Fetch returns the raw bytes stored at location, routed the same way as
// source reads. A missing object yields an error wrapping domain.ErrNotFound.
func (r *Reader) Fetch(ctx context.Context, location string) ([]byte, error) {
	store, loc, err := r.route(location)
	if err != nil {
		return nil, err
	}
	return store.ReadAll(ctx, loc)
}
