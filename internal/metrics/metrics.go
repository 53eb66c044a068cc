package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry and every collector the service exports.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// Monitor
	PollTicks      *prometheus.CounterVec
	Backoffs       prometheus.Counter
	Publishes      prometheus.Counter
	SnapshotSize   prometheus.Gauge
	SourceOutcomes *prometheus.CounterVec

	// Normalizer
	RecordsAccepted *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec

	// WebSocket
	ConnectionsCurrent prometheus.Gauge
	ConnectionsTotal   *prometheus.CounterVec
	SendFailures       *prometheus.CounterVec
	BroadcastDuration  prometheus.Histogram

	// Sinks
	CircuitBreakerState *prometheus.GaugeVec
	SinkErrors          *prometheus.CounterVec
}

// New builds the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		PollTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_poll_ticks_total",
			Help: "Poll ticks by result (published/unchanged/failed)",
		}, []string{"result"}),
		Backoffs: f.NewCounter(prometheus.CounterOpts{
			Name: "livefeed_poll_backoffs_total",
			Help: "Poll ticks that switched the loop to the back-off interval",
		}),
		Publishes: f.NewCounter(prometheus.CounterOpts{
			Name: "livefeed_snapshots_published_total",
			Help: "Snapshots published to subscribers",
		}),
		SnapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_snapshot_matches",
			Help: "Matches in the most recently built snapshot",
		}),
		SourceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_source_reads_total",
			Help: "Source reads by source and outcome (ok/unavailable/corrupt/skipped)",
		}, []string{"source", "status"}),
		RecordsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_records_accepted_total",
			Help: "Records normalized into matches, by source variant",
		}, []string{"variant"}),
		RecordsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_records_rejected_total",
			Help: "Records dropped by validation, by source variant and missing field",
		}, []string{"variant", "field"}),
		ConnectionsCurrent: f.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_websocket_connections_current",
			Help: "Currently registered subscriber connections",
		}),
		ConnectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_websocket_connections_total",
			Help: "Subscriber connection attempts by result (accepted/rejected/failed)",
		}, []string{"result"}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_websocket_send_failures_total",
			Help: "Per-connection send failures by reason",
		}, []string{"reason"}),
		BroadcastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livefeed_broadcast_duration_seconds",
			Help:    "Time to fan one snapshot out to every connection",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livefeed_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"component"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_sink_errors_total",
			Help: "Snapshot sink and history backend errors by component",
		}, []string{"component"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Tick(result string) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(result).Inc()
}

func (m *Metrics) Backoff() {
	if m == nil {
		return
	}
	m.Backoffs.Inc()
}

func (m *Metrics) Published(matches int) {
	if m == nil {
		return
	}
	m.Publishes.Inc()
	m.SnapshotSize.Set(float64(matches))
}

func (m *Metrics) Built(matches int) {
	if m == nil {
		return
	}
	m.SnapshotSize.Set(float64(matches))
}

func (m *Metrics) SourceRead(source, status string) {
	if m == nil {
		return
	}
	m.SourceOutcomes.WithLabelValues(source, status).Inc()
}

func (m *Metrics) RecordAccepted(variant string) {
	if m == nil {
		return
	}
	m.RecordsAccepted.WithLabelValues(variant).Inc()
}

func (m *Metrics) RecordRejected(variant string, missing []string) {
	if m == nil {
		return
	}
	for _, field := range missing {
		m.RecordsRejected.WithLabelValues(variant, field).Inc()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues("accepted").Inc()
	m.ConnectionsCurrent.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsCurrent.Dec()
}

func (m *Metrics) ConnectionRejected(result string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveBroadcast(seconds float64) {
	if m == nil {
		return
	}
	m.BroadcastDuration.Observe(seconds)
}

// BreakerState records a circuit breaker state as 0 (closed), 1 (half-open)
// or 2 (open).
func (m *Metrics) BreakerState(component string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(component).Set(state)
}

func (m *Metrics) SinkError(component string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(component).Inc()
}
