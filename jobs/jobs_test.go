package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/visionboost/portal/internal/jobs"
	"github.com/visionboost/portal/internal/social"
)

type fakeVerifier struct {
	verifyErr error
	status    social.Status
	verified  []string
	failed    []string
}

func (f *fakeVerifier) Verify(_ context.Context, id string) (social.Link, error) {
	f.verified = append(f.verified, id)
	return social.Link{ID: id, Status: f.status}, f.verifyErr
}

func (f *fakeVerifier) Fail(_ context.Context, id, reason string) (social.Link, error) {
	f.failed = append(f.failed, id)
	return social.Link{ID: id, Status: social.StatusFailed, Reason: reason}, nil
}

func linkTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := NewLinkVerifyTask(id)
	require.NoError(t, err)
	return task
}

func TestNewLinkVerifyTaskEncodesPayload(t *testing.T) {
	task := linkTask(t, "abc")
	assert.Equal(t, TaskSocialLinkVerify, task.Type())

	var payload LinkVerifyPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "abc", payload.LinkID)

	_, err := NewLinkVerifyTask("")
	assert.Error(t, err)
}

func TestLinkVerifyJobConnected(t *testing.T) {
	v := &fakeVerifier{status: social.StatusConnected}
	job := NewLinkVerifyJob(v, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), linkTask(t, "abc")))
	assert.Equal(t, []string{"abc"}, v.verified)
	assert.Empty(t, v.failed)
}

func TestLinkVerifyJobRetriesWhileNotLinked(t *testing.T) {
	v := &fakeVerifier{status: social.StatusPending, verifyErr: social.ErrNotLinked}
	job := NewLinkVerifyJob(v, nil, nil)

	err := job.Handle(context.Background(), linkTask(t, "abc"))
	require.ErrorIs(t, err, social.ErrNotLinked)
	assert.False(t, isFailure(err))
	assert.Empty(t, v.failed)
}

func TestLinkVerifyJobExpiredLinkIsDone(t *testing.T) {
	v := &fakeVerifier{verifyErr: social.ErrLinkNotFound}
	job := NewLinkVerifyJob(v, nil, nil)
	assert.NoError(t, job.Handle(context.Background(), linkTask(t, "gone")))
}

func TestLinkVerifyJobBadPayloadSkipsRetry(t *testing.T) {
	job := NewLinkVerifyJob(&fakeVerifier{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskSocialLinkVerify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLinkVerifyJobTransientErrorCounts(t *testing.T) {
	boom := errors.New("backend down")
	job := NewLinkVerifyJob(&fakeVerifier{verifyErr: boom}, nil, nil)
	err := job.Handle(context.Background(), linkTask(t, "abc"))
	assert.ErrorIs(t, err, boom)
	assert.True(t, isFailure(err))
}

func TestRetryDelayIsFixedForLinkVerification(t *testing.T) {
	fn := retryDelay(2 * time.Second)
	assert.Equal(t, 2*time.Second, fn(1, errors.New("x"), linkTask(t, "a")))
	assert.Equal(t, 2*time.Second, fn(10, errors.New("x"), linkTask(t, "a")))

	assert.Equal(t, LinkVerifyDelay, retryDelay(0)(3, errors.New("x"), linkTask(t, "a")))
	assert.Positive(t, fn(1, errors.New("x"), NewBackendPingTask()))
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestBackendPingJobNeverRetries(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewBackendPingJob(fakePinger{err: errors.New("refused")}, nil, metrics)
	assert.NoError(t, job.Handle(context.Background(), NewBackendPingTask()))

	job = NewBackendPingJob(fakePinger{}, nil, metrics)
	assert.NoError(t, job.Handle(context.Background(), NewBackendPingTask()))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, status: http.StatusOK, pending: 3},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			var inspector QueueInspector
			if tc.inspector != nil {
				inspector = tc.inspector
			}
			NewHandler(inspector, nil).MountRoutes(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body.Queue)
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}
