package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/visionboost/portal/internal/jobs"
	"github.com/visionboost/portal/internal/social"
)

// LinkVerifier is the part of the social service the verification job drives.
type LinkVerifier interface {
	Verify(ctx context.Context, id string) (social.Link, error)
	Fail(ctx context.Context, id, reason string) (social.Link, error)
}

// LinkVerifyJob confirms pending social links. Each run checks once; a link
// that has not appeared yet is retried until the task's retry budget runs
// out, at which point the link is failed.
type LinkVerifyJob struct {
	Verifier LinkVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLinkVerifyJob initialises the verification handler.
func NewLinkVerifyJob(verifier LinkVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LinkVerifyJob {
	return &LinkVerifyJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes one verification attempt.
func (j *LinkVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("link verify: handler not configured")
	}
	var payload LinkVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.LinkID == "" {
		return fmt.Errorf("link verify: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskSocialLinkVerify)
	link, err := j.Verifier.Verify(ctx, payload.LinkID)
	switch {
	case err == nil:
		j.Metrics.LinkOutcome(string(link.Status))
		return tracker.End(nil)
	case errors.Is(err, social.ErrLinkNotFound):
		j.logger().Info("link expired before verification", slog.String("link", payload.LinkID))
		return tracker.End(nil)
	case errors.Is(err, social.ErrNotLinked):
		if lastAttempt(ctx) {
			failed, ferr := j.Verifier.Fail(ctx, payload.LinkID, "account did not appear in time")
			if ferr != nil {
				return tracker.End(ferr)
			}
			j.Metrics.LinkOutcome(string(failed.Status))
			return tracker.End(nil)
		}
		// Not a failure, just not yet.
		tracker.End(nil)
		return err
	default:
		j.logger().Warn("link verification attempt failed",
			slog.String("link", payload.LinkID),
			slog.Any("error", err))
		if lastAttempt(ctx) {
			if failed, ferr := j.Verifier.Fail(ctx, payload.LinkID, "verification failed"); ferr == nil {
				j.Metrics.LinkOutcome(string(failed.Status))
			}
		}
		return tracker.End(err)
	}
}

func (j *LinkVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// lastAttempt reports whether the running task has used up its retries. It
// is false when the context carries no task metadata.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	limit, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= limit
}
