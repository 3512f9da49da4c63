package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/app"
	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/observability"
	"github.com/visionboost/portal/internal/platform/cache"
	"github.com/visionboost/portal/internal/platform/httpx"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/social"
	"github.com/visionboost/portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	apiClient, err := api.New(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Metrics: api.NewMetrics(metrics.Registerer()),
	})
	if err != nil {
		logger.Error("init api client", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "vb_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	// A 401 during verification signs the session out like a page request would.
	apiClient.SetInvalidator(auth.NewService(apiClient, sessionManager, auth.Options{Logger: logger}))
	// asynq retries drive the polling here, so no enqueuer.
	socialService := social.NewService(apiClient, social.NewStore(redisClient, cfg.LinkTTL), nil, sessionManager, social.Config{
		PublicURL:   cfg.PublicURL,
		VerifyDelay: cfg.LinkVerifyDelay,
		Logger:      logger,
	})

	linkJob := jobs.NewLinkVerifyJob(socialService, logger, metrics.Jobs())
	pingJob := jobs.NewBackendPingJob(apiClient, logger, metrics.Jobs())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		RetryDelay:  cfg.LinkVerifyDelay,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSocialLinkVerify, Handler: linkJob.Handle},
			{Type: jobs.TaskBackendPing, Handler: pingJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BackendPingSpec, Task: jobs.NewBackendPingTask(), Options: []asynq.Option{asynq.MaxRetry(0), asynq.Unique(time.Minute)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts.Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route("/jobs", jobs.NewHandler(inspector, logger).MountRoutes)
	server := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker metrics shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
