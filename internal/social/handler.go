package social

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/platform/httpx"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/view/page"
)

const (
	accountsPath  = "/dashboard/client/marketing/accounts"
	maxStatusWait = 25 * time.Second
)

// Handler serves the connected-accounts page and the link endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   *page.Renderer
	guard   *nav.Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, pages *page.Renderer, guard *nav.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages, guard: guard}
}

// MountAccountRoutes registers the accounts page below the client dashboard.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Get("/marketing/accounts", h.accounts)
	r.Post("/marketing/accounts/connect/{platform}", h.connect)
	r.Post("/marketing/accounts/{id}/sync", h.sync)
	r.Post("/marketing/accounts/{id}/disconnect", h.disconnect)
}

// MountRoutes registers the link status and completion endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAuth).Get("/social/links/{id}", h.status)
	r.Get("/oauth/complete", h.complete)
}

type accountsData struct {
	Errors    []string
	Accounts  []api.SocialAccount
	Platforms []string
}

func (h *Handler) accounts(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	data := accountsData{Platforms: Platforms}
	accounts, err := h.service.Accounts(r.Context(), sess)
	if err != nil {
		if api.IsUnauthorized(err) {
			http.Redirect(w, r, nav.LoginRedirect(r), http.StatusSeeOther)
			return
		}
		h.logger.Warn("load social accounts", slog.Any("error", err))
		data.Errors = []string{api.UserMessage(err)}
	}
	data.Accounts = accounts
	h.pages.Render(w, r, http.StatusOK, "pages/client_accounts.html", "Connected accounts", data)
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	link, err := h.service.Start(r.Context(), sess, chi.URLParam(r, "platform"))
	if err != nil {
		if errors.Is(err, ErrUnknownPlatform) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/link_pending.html", "Connecting "+link.Platform, link)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	h.accountAction(w, r, h.service.Sync, "Sync requested")
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.accountAction(w, r, h.service.Disconnect, "Account disconnected")
}

func (h *Handler) accountAction(w http.ResponseWriter, r *http.Request, action func(context.Context, *shared.Session, int64) error, done string) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	if err := action(r.Context(), shared.SessionFromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	shared.Flash(r.Context(), "success", done)
	http.Redirect(w, r, accountsPath, http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if api.IsUnauthorized(err) {
		http.Redirect(w, r, nav.LoginRedirect(r), http.StatusSeeOther)
		return
	}
	h.logger.Warn("social account action failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	shared.Flash(r.Context(), "error", api.UserMessage(err))
	http.Redirect(w, r, accountsPath, http.StatusSeeOther)
}

type statusResponse struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	Status    Status `json:"status"`
	AccountID int64  `json:"account_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Attempts  int    `json:"attempts"`
}

func newStatusResponse(link Link) statusResponse {
	return statusResponse{
		ID:        link.ID,
		Platform:  link.Platform,
		Status:    link.Status,
		AccountID: link.AccountID,
		Reason:    link.Reason,
		Attempts:  link.Attempts,
	}
}

// status answers the opener's poll. With ?wait=<duration> it holds the
// request until the link settles or the wait elapses.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var (
		link Link
		err  error
	)
	if wait, ok := parseWait(r.URL.Query().Get("wait")); ok {
		link, err = h.service.Await(r.Context(), sess, id, wait)
	} else {
		link, err = h.service.Status(r.Context(), sess, id)
	}
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Warn("link status", slog.String("link", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newStatusResponse(link))
}

func parseWait(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, false
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, false
	}
	return min(d, maxStatusWait), true
}

// complete is where the backend sends the popup once the provider callback
// finished. It is the explicit completion signal for the link.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("link")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	link, err := h.service.Complete(r.Context(), id)
	status := http.StatusOK
	if err != nil {
		if !errors.Is(err, ErrLinkNotFound) {
			h.logger.Warn("complete social link", slog.String("link", id), slog.Any("error", err))
		}
		status = http.StatusNotFound
		link = Link{ID: id, Status: StatusFailed, Reason: "link expired"}
	}
	h.pages.Render(w, r, status, "pages/oauth_complete.html", "Account linking", link)
}
