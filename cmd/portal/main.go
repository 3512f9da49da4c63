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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/app"
	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/dashboard"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/observability"
	"github.com/visionboost/portal/internal/platform/cache"
	"github.com/visionboost/portal/internal/platform/db"
	"github.com/visionboost/portal/internal/services"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/social"
	"github.com/visionboost/portal/internal/view"
	"github.com/visionboost/portal/internal/view/page"
	"github.com/visionboost/portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	sessionManager := shared.NewSessionManager(redisClient, "vb_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	apiClient, err := api.New(api.Config{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.APITimeout,
		Coalesce: cfg.APICoalesceGets,
		Metrics:  api.NewMetrics(metrics.Registerer()),
	})
	if err != nil {
		logger.Error("init api client", slog.Any("error", err))
		os.Exit(1)
	}

	var recorder auth.Recorder = auth.NopRecorder{}
	if cfg.AuditEnabled() {
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return auth.NewPGRecorder(tx).EnsureSchema(ctx)
		}); err != nil {
			logger.Error("prepare session audit schema", slog.Any("error", err))
			os.Exit(1)
		}
		recorder = auth.NewPGRecorder(pool)
		logger.Info("session audit enabled")
	}

	authService := auth.NewService(apiClient, sessionManager, auth.Options{
		Revalidate: cfg.UserRevalidateInterval,
		Recorder:   recorder,
		Logger:     logger,
	})
	apiClient.SetInvalidator(authService)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	menus, err := nav.Default()
	if err != nil {
		logger.Error("load navigation", slog.Any("error", err))
		os.Exit(1)
	}
	catalog := services.DefaultCatalog()
	pages := page.NewRenderer(logger, templates, csrfManager, menus, catalog)
	guard := nav.NewGuard(menus, auth.Viewer, logger)

	jobClient, err := jobs.NewClient(redisOpts.Asynq(), cfg.LinkVerifyAttempts)
	if err != nil {
		logger.Error("job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	socialService := social.NewService(apiClient, social.NewStore(redisClient, cfg.LinkTTL), jobClient, sessionManager, social.Config{
		PublicURL:   cfg.PublicURL,
		VerifyDelay: cfg.LinkVerifyDelay,
		Logger:      logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pages:            pages,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthService:      authService,
		AuthHandler:      auth.NewHandler(logger, authService, templates, sessionManager, csrfManager),
		NavHandler:       nav.NewHandler(menus, cfg.IsProduction()),
		DashboardHandler: dashboard.NewHandler(logger, apiClient, pages, guard, catalog),
		SocialHandler:    social.NewHandler(logger, socialService, pages, guard),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("api", cfg.APIBaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
