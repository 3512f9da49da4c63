package nav

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/auth/login"

// Viewer is the guard's read-only view of the session.
type Viewer struct {
	Loading       bool
	Authenticated bool
	Role          string
}

// ViewerFunc resolves the viewer for a request context.
type ViewerFunc func(ctx context.Context) Viewer

// Guard redirects requests that must not see a page. It re-evaluates on
// every request, so a session cleared mid-flight is observed immediately.
type Guard struct {
	menus  *Menus
	viewer ViewerFunc
	logger *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(menus *Menus, viewer ViewerFunc, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{menus: menus, viewer: viewer, logger: logger}
}

// RequireAuth lets authenticated viewers through and sends everyone else to
// the login page with a return path. While the session is still loading the
// protected content is withheld.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := g.viewer(r.Context())
		switch {
		case v.Loading:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "session is loading", http.StatusServiceUnavailable)
		case !v.Authenticated:
			http.Redirect(w, r, LoginRedirect(r), http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// RequireRole admits only viewers of role. Other authenticated viewers are
// sent to their own home instead of seeing the section.
func (g *Guard) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := g.viewer(r.Context())
			actual := NormaliseRole(v.Role)
			if actual != role {
				g.logger.Info("misrouted dashboard request",
					slog.String("path", r.URL.Path),
					slog.String("role", actual),
					slog.String("section", role))
				http.Redirect(w, r, g.menus.Home(actual), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireAllowed admits viewers whose role permits the request path.
func (g *Guard) RequireAllowed(next http.Handler) http.Handler {
	return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := g.viewer(r.Context())
		if !g.menus.Allowed(v.Role, r.URL.Path) {
			http.Redirect(w, r, g.menus.Home(v.Role), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// DashboardRedirect sends /dashboard to the viewer's home.
func (g *Guard) DashboardRedirect(w http.ResponseWriter, r *http.Request) {
	v := g.viewer(r.Context())
	http.Redirect(w, r, g.menus.Home(v.Role), http.StatusSeeOther)
}

// LoginRedirect builds the login URL carrying the current path as next.
func LoginRedirect(r *http.Request) string {
	next := r.URL.RequestURI()
	if r.Method != http.MethodGet {
		next = r.URL.Path
	}
	return LoginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext returns target when it is a local absolute path, fallback otherwise.
func SafeNext(target, fallback string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return target
}
