// Package page assembles the shared layout data for signed-in pages.
package page

import (
	"log/slog"
	"net/http"

	"github.com/visionboost/portal/internal/auth"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/services"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/view"
)

// Renderer fills the layout (menu, switcher, flash, CSRF) and renders pages.
type Renderer struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	menus     *nav.Menus
	catalog   services.Catalog
}

// NewRenderer constructs a Renderer.
func NewRenderer(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, menus *nav.Menus, catalog services.Catalog) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger, templates: templates, csrf: csrf, menus: menus, catalog: catalog}
}

// Data builds the template data for r.
func (p *Renderer) Data(r *http.Request, title string, data any) view.TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	token, _ := p.csrf.EnsureToken(ctx, sess)
	state := auth.StateFromContext(ctx)

	td := view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		User:        state.User,
		Data:        data,
	}
	if state.IsAuthenticated {
		active := state.ActiveServices()
		td.Nav = p.menus.Render(state.Role(), r.URL.Path, active, nav.ExpansionFromRequest(r))
		if state.Role() == nav.RoleClient {
			td.Switcher = p.catalog.Options(active, r.URL.Path)
		}
	}
	return td
}

// Render writes the named page with status.
func (p *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	td := p.Data(r, title, data)
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	if err := p.templates.Render(w, name, td); err != nil {
		p.logger.Error("render page", slog.String("page", name), slog.Any("error", err))
		if status == http.StatusOK {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}
