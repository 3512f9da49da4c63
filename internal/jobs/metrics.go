package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	linkOutcomes *prometheus.CounterVec
	backendUp    prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// LinkOutcome counts a social account link reaching a terminal status.
func (m *Metrics) LinkOutcome(status string) {
	if m == nil || status == "" {
		return
	}
	m.linkOutcomes.WithLabelValues(status).Inc()
}

// SetBackendUp records the latest backend reachability probe.
func (m *Metrics) SetBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.backendUp.Set(1)
		return
	}
	m.backendUp.Set(0)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	linkOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_social_links_total",
		Help: "Social account links that reached a terminal status.",
	}, []string{"status"})
	backendUp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_backend_up",
		Help: "Whether the last backend health probe succeeded (1) or not (0).",
	})
	registerer.MustRegister(runs, failures, duration, linkOutcomes, backendUp)
	return &Metrics{runs: runs, failures: failures, duration: duration, linkOutcomes: linkOutcomes, backendUp: backendUp}
}
