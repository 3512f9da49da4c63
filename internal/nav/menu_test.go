package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionboost/portal/internal/services"
)

func loadDefaultMenus(t *testing.T) *Menus {
	t.Helper()
	menus, err := Default()
	require.NoError(t, err)
	return menus
}

func collectPaths(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		if e.Path != "" {
			out = append(out, e.Path)
		}
		out = append(out, collectPaths(e.Children)...)
	}
	return out
}

func TestTreeEveryRoleStaysInsideItsPrefixes(t *testing.T) {
	menus := loadDefaultMenus(t)
	for _, role := range []string{RoleAdmin, RoleAgent, RoleClient} {
		t.Run(role, func(t *testing.T) {
			tree := menus.Tree(role)
			require.NotEmpty(t, tree)
			for _, path := range collectPaths(tree) {
				assert.True(t, menus.Allowed(role, path), "%s escapes %v", path, menus.PermittedPrefixes(role))
			}
			assert.True(t, menus.Allowed(role, menus.Home(role)))
		})
	}
}

func TestTreeUnknownRoleFallsBackToClient(t *testing.T) {
	menus := loadDefaultMenus(t)
	assert.Equal(t, menus.Tree(RoleClient), menus.Tree("superuser"))
	assert.Equal(t, menus.Tree(RoleClient), menus.Tree(""))
	assert.Equal(t, "/dashboard/client", menus.Home(""))
}

func TestHomes(t *testing.T) {
	menus := loadDefaultMenus(t)
	assert.Equal(t, "/dashboard/admin", menus.Home(RoleAdmin))
	assert.Equal(t, "/dashboard/agent", menus.Home("Agent"))
	assert.Equal(t, "/dashboard/client", menus.Home(RoleClient))
}

func TestAllowedIsSegmentAware(t *testing.T) {
	menus := loadDefaultMenus(t)
	assert.True(t, menus.Allowed(RoleAgent, "/dashboard/agent/messages"))
	assert.False(t, menus.Allowed(RoleAgent, "/dashboard/agentx"))
	assert.False(t, menus.Allowed(RoleClient, "/dashboard/admin"))
	assert.True(t, menus.Allowed(RoleClient, "/dashboard/notifications"))
}

func TestTreeReturnsCopies(t *testing.T) {
	menus := loadDefaultMenus(t)
	tree := menus.Tree(RoleAdmin)
	tree[0].Label = "changed"
	assert.NotEqual(t, "changed", menus.Tree(RoleAdmin)[0].Label)
}

func TestGroupIDsDerivedFromLabels(t *testing.T) {
	menus := loadDefaultMenus(t)
	group, ok := menus.Group("social-media-marketing")
	require.True(t, ok)
	assert.Equal(t, services.Marketing, group.Service)
	assert.Equal(t, "social-media-marketing.content", group.Children[0].ID)
}

func TestLoadRejectsPathOutsidePrefixes(t *testing.T) {
	doc := `
roles:
  admin:
    home: /dashboard/admin
    prefixes: [/dashboard/admin]
    menu:
      - label: Overview
        path: /dashboard/admin
  agent:
    home: /dashboard/agent
    prefixes: [/dashboard/agent]
    menu:
      - label: Sneaky
        path: /dashboard/admin/clients
  client:
    home: /dashboard/client
    prefixes: [/dashboard/client]
    menu:
      - label: Overview
        path: /dashboard/client
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside permitted prefixes")
}

func TestLoadRejectsMissingRole(t *testing.T) {
	doc := `
roles:
  admin:
    home: /dashboard/admin
    prefixes: [/dashboard/admin]
    menu:
      - label: Overview
        path: /dashboard/admin
`
	_, err := Load(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestRenderDisablesInactiveServicesAndOpensActiveGroup(t *testing.T) {
	menus := loadDefaultMenus(t)
	items := menus.Render(RoleClient, "/dashboard/client/marketing/performance", []services.ID{services.Marketing}, Expansion{})

	byID := map[string]Item{}
	for _, item := range items {
		byID[item.ID] = item
	}
	marketing := byID["social-media-marketing"]
	assert.False(t, marketing.Disabled)
	assert.True(t, marketing.Open)
	assert.True(t, marketing.Items[1].Active)
	assert.False(t, marketing.Items[0].Active)

	website := byID["website"]
	assert.True(t, website.Disabled)
	assert.True(t, website.Items[0].Disabled)
	assert.False(t, website.Open)
	assert.True(t, byID["courses"].Disabled)
	assert.False(t, byID["overview"].Active)
}

func TestRenderHonoursExpansionCookie(t *testing.T) {
	menus := loadDefaultMenus(t)
	items := menus.Render(RoleClient, "/dashboard/client", nil, Expansion{"website": true})
	for _, item := range items {
		switch item.ID {
		case "website":
			assert.True(t, item.Open)
		case "overview":
			assert.True(t, item.Active)
		}
	}
}

func TestRenderHighlightsDeepestPrefixForDetailPages(t *testing.T) {
	menus := loadDefaultMenus(t)
	items := menus.Render(RoleAgent, "/dashboard/agent/clients/42", nil, nil)
	for _, item := range items {
		assert.Equal(t, item.ID == "my-clients", item.Active, item.ID)
	}
}

func TestToggleFlipsCookieAndReturnsToReferrer(t *testing.T) {
	menus := loadDefaultMenus(t)
	router := chi.NewRouter()
	router.Route("/nav", NewHandler(menus, false).MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/nav/toggle/billing", nil)
	req.Header.Set("Referer", "http://example.com/dashboard/admin/invoices")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard/admin/invoices", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "billing", cookies[0].Value)

	req = httptest.NewRequest(http.MethodPost, "/nav/toggle/billing", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Empty(t, rec.Result().Cookies()[0].Value)
}

func TestToggleUnknownGroup(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/nav", NewHandler(loadDefaultMenus(t), false).MountRoutes)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nav/toggle/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/dashboard/client?x=1", SafeNext("/dashboard/client?x=1", "/"))
	assert.Equal(t, "/", SafeNext("//evil.example", "/"))
	assert.Equal(t, "/", SafeNext("https://evil.example/", "/"))
	assert.Equal(t, "/", SafeNext("", "/"))
}

func viewerOf(v Viewer) ViewerFunc {
	return func(context.Context) Viewer { return v }
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("protected"))
	})
}

func TestGuardRedirectsAnonymousToLogin(t *testing.T) {
	guard := NewGuard(loadDefaultMenus(t), viewerOf(Viewer{}), nil)
	rec := httptest.NewRecorder()
	guard.RequireAuth(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/client/invoices?page=2", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fdashboard%2Fclient%2Finvoices%3Fpage%3D2", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "protected")
}

func TestGuardWithholdsContentWhileLoading(t *testing.T) {
	guard := NewGuard(loadDefaultMenus(t), viewerOf(Viewer{Loading: true}), nil)
	rec := httptest.NewRecorder()
	guard.RequireAuth(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/client", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "protected")
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestGuardRoleRedirectsMisroutedUsersHome(t *testing.T) {
	guard := NewGuard(loadDefaultMenus(t), viewerOf(Viewer{Authenticated: true, Role: RoleClient}), nil)
	rec := httptest.NewRecorder()
	guard.RequireRole(RoleAdmin)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard/client", rec.Header().Get("Location"))
}

func TestGuardRoleAdmitsMatchingRole(t *testing.T) {
	guard := NewGuard(loadDefaultMenus(t), viewerOf(Viewer{Authenticated: true, Role: RoleAgent}), nil)
	rec := httptest.NewRecorder()
	guard.RequireRole(RoleAgent)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/agent", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected", rec.Body.String())
}

func TestDashboardRedirectUsesRoleHome(t *testing.T) {
	guard := NewGuard(loadDefaultMenus(t), viewerOf(Viewer{Authenticated: true, Role: RoleAgent}), nil)
	rec := httptest.NewRecorder()
	guard.DashboardRedirect(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, "/dashboard/agent", rec.Header().Get("Location"))
}
