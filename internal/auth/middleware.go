package auth

import (
	"net/http"

	"github.com/visionboost/portal/internal/shared"
)

// Middleware resolves the session state once per request and stores it in
// the request context. Downstream handlers treat it as read-only.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		ctx := ContextWithState(r.Context(), loadingState())
		state := s.Bootstrap(ctx, sess)
		next.ServeHTTP(w, r.WithContext(ContextWithState(ctx, state)))
	})
}
