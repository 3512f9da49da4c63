// Package dashboard serves the role dashboards. Every page loads its data
// fresh from the backend through a partial-failure join and derives its
// counters locally.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/services"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/view/page"
)

// Backend lists the API calls the dashboards issue.
type Backend interface {
	AdminStats(ctx context.Context, token string) (api.AdminStats, error)
	AgentStats(ctx context.Context, token string) (api.AgentStats, error)
	Clients(ctx context.Context, token string) ([]api.ClientAccount, error)
	MyClients(ctx context.Context, token string) ([]api.ClientAccount, error)
	Tasks(ctx context.Context, token string) ([]api.Task, error)
	Messages(ctx context.Context, token string) ([]api.Message, error)
	SendMessage(ctx context.Context, token string, msg api.NewMessage) (api.Message, error)
	Content(ctx context.Context, token, status string) ([]api.ContentPost, error)
	Performance(ctx context.Context, token string) ([]api.PerformanceMetric, error)
	Invoices(ctx context.Context, token string) ([]api.Invoice, error)
	WebsiteProjects(ctx context.Context, token string) ([]api.WebsiteProject, error)
	SocialAccounts(ctx context.Context, token string) ([]api.SocialAccount, error)
	Notifications(ctx context.Context, token string) ([]api.Notification, error)
	MarkNotificationRead(ctx context.Context, token string, id int64) error
}

// Handler serves dashboard pages.
type Handler struct {
	logger    *slog.Logger
	backend   Backend
	pages     *page.Renderer
	guard     *nav.Guard
	catalog   services.Catalog
	validator *validator.Validate
}

// NewHandler constructs the dashboard handler.
func NewHandler(logger *slog.Logger, backend Backend, pages *page.Renderer, guard *nav.Guard, catalog services.Catalog) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		backend:   backend,
		pages:     pages,
		guard:     guard,
		catalog:   catalog,
		validator: validator.New(),
	}
}

// MountRoutes registers /dashboard and /switch routes. marketing mounts
// extra client routes that require the marketing service.
func (h *Handler) MountRoutes(r chi.Router, marketing ...func(chi.Router)) {
	r.Route("/dashboard", func(r chi.Router) {
		r.With(h.guard.RequireAuth).Get("/", h.guard.DashboardRedirect)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.guard.RequireRole(nav.RoleAdmin))
			r.Get("/", h.adminOverview)
			r.Get("/clients", h.adminClients)
			r.Get("/tasks", h.tasksPage("pages/admin_tasks.html"))
			r.Get("/invoices", h.invoicesPage("pages/admin_invoices.html"))
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(h.guard.RequireRole(nav.RoleAgent))
			r.Get("/", h.agentOverview)
			r.Get("/clients", h.agentClients)
			r.Get("/messages", h.messagesPage)
			r.Post("/messages", h.sendMessage)
			r.Get("/tasks", h.tasksPage("pages/agent_tasks.html"))
		})

		r.Route("/client", func(r chi.Router) {
			r.Use(h.guard.RequireRole(nav.RoleClient))
			r.Get("/", h.clientOverview)
			r.With(h.requireService(services.Marketing)).Get("/marketing", h.clientMarketing)
			r.With(h.requireService(services.Marketing)).Get("/marketing/performance", h.clientPerformance)
			r.With(h.requireService(services.Website)).Get("/website", h.clientWebsite)
			r.With(h.requireService(services.Courses)).Get("/courses", h.clientCourses)
			r.Group(func(r chi.Router) {
				r.Use(h.requireService(services.Marketing))
				for _, mount := range marketing {
					mount(r)
				}
			})
			r.Get("/messages", h.messagesPage)
			r.Post("/messages", h.sendMessage)
			r.Get("/invoices", h.invoicesPage("pages/client_invoices.html"))
		})

		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAllowed)
			r.Get("/notifications", h.notificationsPage)
			r.Post("/notifications/{id}/read", h.markNotificationRead)
		})
	})

	r.With(h.guard.RequireRole(nav.RoleClient)).Get("/switch/{service}", h.switchService)
}

// requireService keeps clients out of dashboards for services their account
// does not have.
func (h *Handler) requireService(id services.ID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := auth.StateFromContext(r.Context())
			if !services.IsActive(state.ActiveServices(), id) {
				label := string(id)
				if svc, ok := h.catalog.Lookup(id); ok {
					label = svc.Label
				}
				shared.Flash(r.Context(), "warning", label+" is not active on your account")
				http.Redirect(w, r, "/dashboard/client", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) switchService(w http.ResponseWriter, r *http.Request) {
	state := auth.StateFromContext(r.Context())
	target, ok := h.catalog.Select(state.ActiveServices(), services.ID(chi.URLParam(r, "service")))
	if !ok {
		http.Redirect(w, r, referrer(r, "/dashboard/client"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// token returns the credential bound to the request's session.
func token(r *http.Request) string {
	return shared.SessionFromContext(r.Context()).Credential()
}

// pageData is embedded by every page view model.
type pageData struct {
	Errors []string
}

func newPageData(failures Failures) pageData {
	return pageData{Errors: failures.Messages()}
}

// render finishes a page load: a 401 anywhere sends the browser to sign in,
// any other failure is shown inside the page.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, failures Failures, name, title string, data any) {
	if failures.Unauthorized() {
		http.Redirect(w, r, nav.LoginRedirect(r), http.StatusSeeOther)
		return
	}
	h.pages.Render(w, r, http.StatusOK, name, title, data)
}

// actionFailed reports a failed form action and sends the browser back.
func (h *Handler) actionFailed(w http.ResponseWriter, r *http.Request, back string, err error) {
	if api.IsUnauthorized(err) {
		http.Redirect(w, r, nav.LoginRedirect(r), http.StatusSeeOther)
		return
	}
	h.logger.Warn("dashboard action failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	shared.Flash(r.Context(), "error", api.UserMessage(err))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func referrer(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return fallback
	}
	return nav.SafeNext(ref.RequestURI(), fallback)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}
