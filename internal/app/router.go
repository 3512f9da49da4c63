package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/dashboard"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/observability"
	"github.com/visionboost/portal/internal/platform/httpx"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/social"
	"github.com/visionboost/portal/internal/view/page"
	"github.com/visionboost/portal/jobs"
	"github.com/visionboost/portal/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pages            *page.Renderer
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	NavHandler       *nav.Handler
	DashboardHandler *dashboard.Handler
	SocialHandler    *social.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(web.Static())))
	r.Handle("/static/*", staticCacheHandler(fileServer))

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Auth:           params.AuthService,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if auth.StateFromContext(r.Context()).IsAuthenticated {
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
				return
			}
			params.Pages.Render(w, r, http.StatusOK, "pages/landing.html", "VisionBoost", nil)
		})

		r.Route("/auth", params.AuthHandler.MountRoutes)
		if params.NavHandler != nil {
			r.Route("/nav", params.NavHandler.MountRoutes)
		}
		var marketing []func(chi.Router)
		if params.SocialHandler != nil {
			marketing = append(marketing, params.SocialHandler.MountAccountRoutes)
			params.SocialHandler.MountRoutes(r)
		}
		params.DashboardHandler.MountRoutes(r, marketing...)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			params.Pages.Render(w, r, http.StatusNotFound, "pages/not_found.html", "Page not found", nil)
		})
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for one hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
