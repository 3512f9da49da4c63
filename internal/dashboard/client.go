package dashboard

import (
	"context"
	"net/http"
	"strings"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/dashboard/stats"
	"github.com/visionboost/portal/internal/services"
)

type clientOverviewData struct {
	pageData
	Services          []services.Service
	ContentCounts     map[string]int
	ConnectedAccounts int
	Accounts          int
	UnreadNotices     int
	Notifications     []api.Notification
}

func (h *Handler) clientOverview(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	state := auth.StateFromContext(r.Context())
	var (
		posts    []api.ContentPost
		accounts []api.SocialAccount
		notes    []api.Notification
	)
	failures := Join(r.Context(), h.logger,
		Into("content", &posts, func(ctx context.Context) ([]api.ContentPost, error) { return h.backend.Content(ctx, tok, "") }),
		Into("social accounts", &accounts, func(ctx context.Context) ([]api.SocialAccount, error) { return h.backend.SocialAccounts(ctx, tok) }),
		Into("notifications", &notes, func(ctx context.Context) ([]api.Notification, error) { return h.backend.Notifications(ctx, tok) }),
	)
	var active []services.Service
	for _, id := range state.ActiveServices() {
		if svc, ok := h.catalog.Lookup(id); ok {
			active = append(active, svc)
		}
	}
	data := clientOverviewData{
		pageData:          newPageData(failures),
		Services:          active,
		ContentCounts:     stats.ContentCounts(posts),
		ConnectedAccounts: stats.ConnectedAccounts(accounts),
		Accounts:          len(accounts),
		UnreadNotices:     stats.UnreadNotifications(notes),
		Notifications:     head(notes, 5),
	}
	h.render(w, r, failures, "pages/client_overview.html", "Overview", data)
}

// contentStatuses are the filters offered on the marketing page.
var contentStatuses = []string{"all", "draft", "scheduled", "published"}

type marketingData struct {
	pageData
	Posts    []api.ContentPost
	Counts   map[string]int
	Status   string
	Statuses []string
}

// clientMarketing lists content posts. The status filter is applied locally
// so the per-status counts always reflect the full list.
func (h *Handler) clientMarketing(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status == "" {
		status = "all"
	}
	var posts []api.ContentPost
	failures := Join(r.Context(), h.logger,
		Into("content", &posts, func(ctx context.Context) ([]api.ContentPost, error) { return h.backend.Content(ctx, tok, "") }),
	)
	data := marketingData{
		pageData: newPageData(failures),
		Posts:    stats.ContentByStatus(posts, status),
		Counts:   stats.ContentCounts(posts),
		Status:   status,
		Statuses: contentStatuses,
	}
	h.render(w, r, failures, "pages/client_marketing.html", "Content", data)
}

type performanceData struct {
	pageData
	Metrics []api.PerformanceMetric
	Summary stats.PerformanceSummary
}

func (h *Handler) clientPerformance(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	var metrics []api.PerformanceMetric
	failures := Join(r.Context(), h.logger,
		Into("performance", &metrics, func(ctx context.Context) ([]api.PerformanceMetric, error) { return h.backend.Performance(ctx, tok) }),
	)
	data := performanceData{pageData: newPageData(failures), Metrics: metrics, Summary: stats.Performance(metrics)}
	h.render(w, r, failures, "pages/client_performance.html", "Performance", data)
}

type websiteData struct {
	pageData
	Projects []api.WebsiteProject
	Progress int
}

func (h *Handler) clientWebsite(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	var projects []api.WebsiteProject
	failures := Join(r.Context(), h.logger,
		Into("website projects", &projects, func(ctx context.Context) ([]api.WebsiteProject, error) { return h.backend.WebsiteProjects(ctx, tok) }),
	)
	data := websiteData{pageData: newPageData(failures), Projects: projects, Progress: stats.WebsiteProgress(projects)}
	h.render(w, r, failures, "pages/client_website.html", "Website", data)
}

func (h *Handler) clientCourses(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, nil, "pages/client_courses.html", "Courses", pageData{})
}
