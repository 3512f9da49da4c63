package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("social:link:verify").End(nil))
	err := errors.New("boom")
	assert.Equal(t, err, m.Track("social:link:verify").End(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("social:link:verify", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("social:link:verify", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("social:link:verify")))
}

func TestLinkOutcomeAndBackendUp(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.LinkOutcome("connected")
	m.LinkOutcome("")
	m.SetBackendUp(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkOutcomes.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendUp))
	m.SetBackendUp(false)
	assert.Zero(t, testutil.ToFloat64(m.backendUp))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.LinkOutcome("failed")
		m.SetBackendUp(true)
		_ = m.Track("x").End(nil)
	})
}
