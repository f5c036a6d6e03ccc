package middleware

import (
	"context"
	"log"
	"net/http"

	"authcore/internal/session/domain"
)

// PrincipalResolver is the session manager surface the auth guard needs.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, id string) (*domain.Principal, error)
}

// RequireSession returns middleware that authenticates the request from its
// session cookie. Missing cookie, unknown or revoked session, disabled
// subject, and backend errors all yield the same 401; the handler never runs
// without a resolved principal in context.
func RequireSession(sessions PrincipalResolver, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = SessionCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			p, err := sessions.ResolvePrincipal(r.Context(), cookie.Value)
			if err != nil {
				log.Printf("middleware: session resolve failed: %v", err)
			}
			if err != nil || p == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
