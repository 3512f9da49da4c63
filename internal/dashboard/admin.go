package dashboard

import (
	"context"
	"net/http"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/dashboard/stats"
)

type adminOverviewData struct {
	pageData
	Stats   api.AdminStats
	Clients stats.ClientSummary
	Tasks   stats.TaskSummary
	Recent  []api.Task
}

func (h *Handler) adminOverview(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	var (
		overview api.AdminStats
		clients  []api.ClientAccount
		tasks    []api.Task
	)
	failures := Join(r.Context(), h.logger,
		Into("stats", &overview, func(ctx context.Context) (api.AdminStats, error) { return h.backend.AdminStats(ctx, tok) }),
		Into("clients", &clients, func(ctx context.Context) ([]api.ClientAccount, error) { return h.backend.Clients(ctx, tok) }),
		Into("tasks", &tasks, func(ctx context.Context) ([]api.Task, error) { return h.backend.Tasks(ctx, tok) }),
	)
	data := adminOverviewData{
		pageData: newPageData(failures),
		Stats:    overview,
		Clients:  stats.Clients(clients),
		Tasks:    stats.Tasks(tasks),
		Recent:   head(tasks, 5),
	}
	h.render(w, r, failures, "pages/admin_overview.html", "Admin overview", data)
}

type clientsData struct {
	pageData
	Clients []api.ClientAccount
	Summary stats.ClientSummary
}

func (h *Handler) adminClients(w http.ResponseWriter, r *http.Request) {
	h.clientsPage(w, r, "Clients", h.backend.Clients)
}

func (h *Handler) clientsPage(w http.ResponseWriter, r *http.Request, title string, list func(context.Context, string) ([]api.ClientAccount, error)) {
	tok := token(r)
	var clients []api.ClientAccount
	failures := Join(r.Context(), h.logger,
		Into("clients", &clients, func(ctx context.Context) ([]api.ClientAccount, error) { return list(ctx, tok) }),
	)
	data := clientsData{pageData: newPageData(failures), Clients: clients, Summary: stats.Clients(clients)}
	h.render(w, r, failures, "pages/clients.html", title, data)
}

type tasksData struct {
	pageData
	Tasks   []api.Task
	Summary stats.TaskSummary
}

func (h *Handler) tasksPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := token(r)
		var tasks []api.Task
		failures := Join(r.Context(), h.logger,
			Into("tasks", &tasks, func(ctx context.Context) ([]api.Task, error) { return h.backend.Tasks(ctx, tok) }),
		)
		data := tasksData{pageData: newPageData(failures), Tasks: tasks, Summary: stats.Tasks(tasks)}
		h.render(w, r, failures, name, "Tasks", data)
	}
}

type invoicesData struct {
	pageData
	Invoices []api.Invoice
	Summary  stats.InvoiceSummary
}

func (h *Handler) invoicesPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := token(r)
		var invoices []api.Invoice
		failures := Join(r.Context(), h.logger,
			Into("invoices", &invoices, func(ctx context.Context) ([]api.Invoice, error) { return h.backend.Invoices(ctx, tok) }),
		)
		data := invoicesData{pageData: newPageData(failures), Invoices: invoices, Summary: stats.Invoices(invoices)}
		h.render(w, r, failures, name, "Invoices", data)
	}
}

func head[T any](list []T, n int) []T {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
