package social

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/services"
	"github.com/visionboost/portal/internal/shared"
	"github.com/visionboost/portal/internal/view"
	"github.com/visionboost/portal/internal/view/page"
)

func newRouter(t *testing.T, f *fixture, sess *shared.Session, viewer nav.Viewer) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	menus, err := nav.Default()
	require.NoError(t, err)
	pages := page.NewRenderer(nil, templates, shared.NewCSRFManager("c"), menus, services.DefaultCatalog())
	guard := nav.NewGuard(menus, func(context.Context) nav.Viewer { return viewer }, nil)
	handler := NewHandler(nil, f.service, pages, guard)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	handler.MountRoutes(r)
	r.Route("/dashboard/client", handler.MountAccountRoutes)
	return r
}

var signedIn = nav.Viewer{Authenticated: true, Role: nav.RoleClient}

func TestStatusEndpointReportsLink(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")
	link, err := f.service.Start(context.Background(), sess, "facebook")
	require.NoError(t, err)
	router := newRouter(t, f, sess, signedIn)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social/links/"+link.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusPending, body.Status)
	assert.Equal(t, "facebook", body.Platform)
}

func TestStatusEndpointHidesOtherSessionsLinks(t *testing.T) {
	f := newFixture(t)
	link, err := f.service.Start(context.Background(), f.session(t, "tok"), "facebook")
	require.NoError(t, err)
	router := newRouter(t, f, f.session(t, "someone-else"), signedIn)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social/links/"+link.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestStatusEndpointRequiresSignIn(t *testing.T) {
	f := newFixture(t)
	router := newRouter(t, f, f.session(t, ""), nav.Viewer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social/links/abc", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fsocial%2Flinks%2Fabc", rec.Header().Get("Location"))
}

func TestStatusLongPollReturnsOnCompletion(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")
	link, err := f.service.Start(context.Background(), sess, "facebook")
	require.NoError(t, err)
	router := newRouter(t, f, sess, signedIn)

	go func() {
		time.Sleep(100 * time.Millisecond)
		f.backend.link(api.SocialAccount{ID: 9, Platform: "facebook", IsConnected: true})
		_, _ = f.service.Verify(context.Background(), link.ID)
	}()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/social/links/"+link.ID+"?wait=3s", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusConnected, body.Status)
	assert.Equal(t, int64(9), body.AccountID)
}

func TestOAuthCompletePage(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")
	link, err := f.service.Start(context.Background(), sess, "facebook")
	require.NoError(t, err)
	f.backend.link(api.SocialAccount{ID: 4, Platform: "facebook", IsConnected: true})
	router := newRouter(t, f, f.session(t, ""), nav.Viewer{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/complete?link="+link.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Account connected")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/complete?link=unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Linking failed")
}

func TestConnectRendersPendingPage(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t, "tok")
	router := newRouter(t, f, sess, signedIn)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dashboard/client/marketing/accounts/connect/instagram", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-authorize-url="https://provider.example/authorize?state=x"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dashboard/client/marketing/accounts/connect/orkut", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseWait(t *testing.T) {
	d, ok := parseWait("20s")
	assert.True(t, ok)
	assert.Equal(t, 20*time.Second, d)

	d, ok = parseWait("90")
	assert.True(t, ok)
	assert.Equal(t, maxStatusWait, d)

	_, ok = parseWait("")
	assert.False(t, ok)
	_, ok = parseWait("-1s")
	assert.False(t, ok)
}
