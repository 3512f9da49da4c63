package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/visionboost/portal/internal/platform/httpx"
	"github.com/visionboost/portal/internal/social"
)

// Defaults for social link verification: one attempt every LinkVerifyDelay,
// LinkVerifyAttempts in total.
const (
	LinkVerifyDelay    = 5 * time.Second
	LinkVerifyAttempts = 24
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	// RetryDelay spaces link verification attempts. Other tasks use the
	// Asynq default backoff.
	RetryDelay time.Duration
	Handlers   []TaskHandler
	Cron       []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		RetryDelayFunc: retryDelay(cfg.RetryDelay),
		IsFailure:      isFailure,
		Logger:         asynqLogger{cfg.Logger},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

func retryDelay(linkDelay time.Duration) asynq.RetryDelayFunc {
	if linkDelay <= 0 {
		linkDelay = LinkVerifyDelay
	}
	return func(n int, err error, t *asynq.Task) time.Duration {
		if t.Type() == TaskSocialLinkVerify {
			return linkDelay
		}
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
}

// isFailure keeps "not linked yet" polls out of the failure statistics.
func isFailure(err error) bool {
	return !errors.Is(err, social.ErrNotLinked)
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	w.logger.Info("worker started")
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client   *asynq.Client
	attempts int
}

// NewClient constructs an Asynq client. linkAttempts bounds how many times a
// social link is verified before it is failed; zero means LinkVerifyAttempts.
func NewClient(redisOpts asynq.RedisClientOpt, linkAttempts int) (*Client, error) {
	if linkAttempts <= 0 {
		linkAttempts = LinkVerifyAttempts
	}
	client := asynq.NewClient(redisOpts)
	return &Client{client: client, attempts: linkAttempts}, nil
}

var _ social.Enqueuer = (*Client)(nil)

// EnqueueLinkVerify schedules verification of linkID after delay.
func (c *Client) EnqueueLinkVerify(ctx context.Context, linkID string, delay time.Duration) error {
	task, err := NewLinkVerifyTask(linkID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(c.attempts-1),
		asynq.Timeout(30*time.Second),
	)
	return err
}

// Enqueue submits an arbitrary prepared task, used by operator tooling.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector is the read side of asynq.Inspector used by the health
// endpoint.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	resp := queueHealth{Queue: QueueDefault}
	if info != nil {
		resp = queueHealth{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// asynqLogger routes Asynq's internal logging through slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(sprint(args)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(sprint(args)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(sprint(args)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(sprint(args)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(sprint(args)) }

func sprint(args []any) string {
	return fmt.Sprint(args...)
}
