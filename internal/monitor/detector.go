// Package monitor runs the poll loop: it watches the sources for changes,
// rebuilds the snapshot every tick and publishes it when the sources moved.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/livefeed/internal/domain"
	"github.com/alanyoungcy/livefeed/internal/normalize"
	"github.com/alanyoungcy/livefeed/internal/notify"
	"github.com/alanyoungcy/livefeed/internal/snapshot"
	"github.com/alanyoungcy/livefeed/internal/source"
)

const (
	DefaultPollInterval    = time.Second
	DefaultBackoffInterval = 5 * time.Second
	defaultSinkTimeout     = 5 * time.Second
)

// SourceReader is the part of *source.Reader the detector needs.
type SourceReader interface {
	Marker(ctx context.Context, specs []domain.SourceSpec) (source.Marker, error)
	Read(ctx context.Context, specs []domain.SourceSpec) []domain.SourceResult
}

// Alerter raises operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives poll-loop metrics.
type Recorder interface {
	Tick(result string)
	Backoff()
	Published(matches int)
	Built(matches int)
	SinkError(component string)
}

// NamedSink is a snapshot sink with a name for logs and metrics.
type NamedSink struct {
	Name string
	Sink domain.SnapshotSink
}

// Config holds the detector settings.
type Config struct {
	Sources         []domain.SourceSpec
	PollInterval    time.Duration
	BackoffInterval time.Duration
	SinkTimeout     time.Duration
}

// Detector owns the last-published marker and drives the poll loop. Only the
// goroutine running Run (or calling Tick) may touch its state.
type Detector struct {
	cfg        Config
	reader     SourceReader
	normalizer *normalize.Normalizer
	store      *snapshot.Store
	sinks      []NamedSink
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    Recorder
	alerts     Alerter

	last       source.Marker
	backingOff bool
	statuses   map[string]domain.SourceStatus
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

func WithRecorder(r Recorder) Option {
	return func(d *Detector) { d.metrics = r }
}

func WithAlerter(a Alerter) Option {
	return func(d *Detector) { d.alerts = a }
}

// WithSinks adds sinks that receive every published snapshot, in order.
func WithSinks(sinks ...NamedSink) Option {
	return func(d *Detector) { d.sinks = append(d.sinks, sinks...) }
}

// New creates a Detector. Sources are reordered so live variants come first,
// keeping configuration order otherwise.
func New(cfg Config, reader SourceReader, normalizer *normalize.Normalizer, store *snapshot.Store, logger *slog.Logger, opts ...Option) *Detector {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BackoffInterval <= 0 {
		cfg.BackoffInterval = DefaultBackoffInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	specs := append([]domain.SourceSpec(nil), cfg.Sources...)
	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].Variant.IsLive() && !specs[j].Variant.IsLive()
	})
	cfg.Sources = specs

	d := &Detector{
		cfg:        cfg,
		reader:     reader,
		normalizer: normalizer,
		store:      store,
		clock:      clockwork.NewRealClock(),
		logger:     logger.With(slog.String("component", "monitor")),
		statuses:   make(map[string]domain.SourceStatus),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls until ctx is cancelled. A failed tick switches to the back-off
// interval until a tick succeeds again; nothing a tick does ends the loop.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("monitor: started",
		slog.Duration("poll_interval", d.cfg.PollInterval),
		slog.Int("sources", len(d.cfg.Sources)),
	)
	for {
		interval := d.cfg.PollInterval
		if _, err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			interval = d.cfg.BackoffInterval
		}

		select {
		case <-ctx.Done():
			d.logger.Info("monitor: stopped")
			return nil
		case <-d.clock.After(interval):
		}
	}
}

// Tick runs one poll cycle. It reports whether a snapshot was published. An
// error means the marker could not be computed; the loop should back off.
func (d *Detector) Tick(ctx context.Context) (bool, error) {
	marker, err := d.reader.Marker(ctx, d.cfg.Sources)
	if err != nil {
		d.enterBackoff(ctx, err)
		return false, err
	}
	d.leaveBackoff(ctx)

	snap := d.build(ctx)

	if !marker.Advanced(d.last) {
		d.store.SetLatest(snap)
		d.tick("unchanged")
		return false, nil
	}

	d.store.SetPublished(snap)
	d.last = marker
	d.tick("published")
	if d.metrics != nil {
		d.metrics.Published(len(snap.Matches))
	}
	d.logger.Info("monitor: snapshot published",
		slog.Int("matches", snap.Summary.TotalMatches),
		slog.Int("live", snap.Summary.LiveMatches),
		slog.Time("source_mtime", marker.ModTime),
	)
	d.publish(ctx, snap)
	return true, nil
}

// build reads every source and assembles a snapshot, live groups first.
func (d *Detector) build(ctx context.Context) *domain.Snapshot {
	results := d.reader.Read(ctx, d.cfg.Sources)
	groups := make([][]domain.Match, 0, len(results))
	for _, res := range results {
		d.trackStatus(ctx, res)
		if res.Status != domain.SourceOK {
			continue
		}
		matches, _ := d.normalizer.NormalizeSource(res)
		groups = append(groups, matches)
	}
	snap := snapshot.Build(groups, d.clock.Now())
	if d.metrics != nil {
		d.metrics.Built(len(snap.Matches))
	}
	return snap
}

func (d *Detector) publish(ctx context.Context, snap *domain.Snapshot) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
		err := s.Sink.Publish(sctx, snap)
		cancel()
		if err == nil {
			continue
		}
		if d.metrics != nil {
			d.metrics.SinkError(s.Name)
		}
		d.logger.Warn("monitor: sink publish failed",
			slog.String("sink", s.Name),
			slog.String("error", err.Error()),
		)
		d.alert(ctx, notify.EventSinkFailing, "Snapshot sink failing",
			fmt.Sprintf("sink %s: %v", s.Name, err))
	}
}

// trackStatus alerts when a source turns corrupt.
func (d *Detector) trackStatus(ctx context.Context, res domain.SourceResult) {
	prev := d.statuses[res.Spec.Name]
	d.statuses[res.Spec.Name] = res.Status
	if res.Status == domain.SourceCorrupt && prev != domain.SourceCorrupt {
		d.alert(ctx, notify.EventSourceCorrupt, "Source corrupt",
			fmt.Sprintf("%s (%s): %v", res.Spec.Name, res.Spec.Location, res.Err))
	}
}

func (d *Detector) enterBackoff(ctx context.Context, err error) {
	d.tick("failed")
	d.logger.Warn("monitor: tick failed, backing off",
		slog.Duration("retry_in", d.cfg.BackoffInterval),
		slog.String("error", err.Error()),
	)
	if d.backingOff {
		return
	}
	d.backingOff = true
	if d.metrics != nil {
		d.metrics.Backoff()
	}
	d.alert(ctx, notify.EventDetectorBackoff, "Feed monitor backing off", err.Error())
}

func (d *Detector) leaveBackoff(ctx context.Context) {
	if !d.backingOff {
		return
	}
	d.backingOff = false
	d.logger.Info("monitor: recovered")
	d.alert(ctx, notify.EventDetectorRecovered, "Feed monitor recovered", "polling resumed at the normal interval")
}

func (d *Detector) tick(result string) {
	if d.metrics != nil {
		d.metrics.Tick(result)
	}
}

// alert is fire-and-forget so a slow chat API never delays a tick.
func (d *Detector) alert(ctx context.Context, event, title, message string) {
	if d.alerts == nil {
		return
	}
	go func() {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := d.alerts.Notify(actx, event, title, message); err != nil {
			d.logger.Debug("monitor: alert failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}()
}
