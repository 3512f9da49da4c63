package nav

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// Handler serves the menu group toggle.
type Handler struct {
	menus  *Menus
	secure bool
}

// NewHandler constructs a Handler.
func NewHandler(menus *Menus, secureCookies bool) *Handler {
	return &Handler{menus: menus, secure: secureCookies}
}

// MountRoutes registers nav routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/toggle/{group}", h.toggle)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "group")
	if _, ok := h.menus.Group(id); !ok {
		http.NotFound(w, r)
		return
	}
	http.SetCookie(w, ExpansionFromRequest(r).Toggle(id).Cookie(h.secure))
	http.Redirect(w, r, backTo(r), http.StatusSeeOther)
}

// backTo picks the same-origin page that issued the request.
func backTo(r *http.Request) string {
	if next := r.PostFormValue("next"); next != "" {
		return SafeNext(next, "/dashboard")
	}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && (ref.Host == "" || ref.Host == r.Host) {
		return SafeNext(ref.RequestURI(), "/dashboard")
	}
	return "/dashboard"
}
