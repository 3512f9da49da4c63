package dashboard

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/dashboard/stats"
)

type notificationsData struct {
	pageData
	Notifications []api.Notification
	Unread        int
}

func (h *Handler) notificationsPage(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	var notes []api.Notification
	failures := Join(r.Context(), h.logger,
		Into("notifications", &notes, func(ctx context.Context) ([]api.Notification, error) { return h.backend.Notifications(ctx, tok) }),
	)
	data := notificationsData{pageData: newPageData(failures), Notifications: notes, Unread: stats.UnreadNotifications(notes)}
	h.render(w, r, failures, "pages/notifications.html", "Notifications", data)
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.backend.MarkNotificationRead(r.Context(), token(r), id); err != nil {
		h.actionFailed(w, r, "/dashboard/notifications", err)
		return
	}
	http.Redirect(w, r, "/dashboard/notifications", http.StatusSeeOther)
}
