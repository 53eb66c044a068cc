package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick("published")
		m.Backoff()
		m.Published(3)
		m.RecordRejected("live", []string{"teams.away"})
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.SendFailed("buffer_full")
		m.BreakerState("redis", 2)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.Tick("published")
	m.Tick("published")
	m.Tick("unchanged")
	m.RecordRejected("live", []string{"teams.home", "teams.away"})
	m.RecordAccepted("live")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRejected.WithLabelValues("live", "teams.away")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsAccepted.WithLabelValues("live")))
}

func TestConnectionGauge(t *testing.T) {
	m := New()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsCurrent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("accepted")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Published(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "livefeed_snapshots_published_total 1"))
	assert.True(t, strings.Contains(body, "livefeed_snapshot_matches 4"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
