package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/visionboost/portal/internal/jobs"
)

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendPingJob records backend reachability for dashboards and alerts.
type BackendPingJob struct {
	Pinger  Pinger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBackendPingJob initialises the probe handler.
func NewBackendPingJob(pinger Pinger, logger *slog.Logger, metrics *jobmetrics.Metrics) *BackendPingJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendPingJob{Pinger: pinger, Logger: logger, Metrics: metrics}
}

// Handle probes the backend once. A failed probe is recorded, not retried.
func (j *BackendPingJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.Metrics.Track(TaskBackendPing)
	err := j.Pinger.Ping(ctx)
	j.Metrics.SetBackendUp(err == nil)
	if err != nil {
		j.Logger.Warn("backend ping failed", slog.Any("error", err))
	}
	return tracker.End(nil)
}
