package middleware

import (
	"log"
	"net/http"

	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/platform/rbac"
	"authcore/internal/security"
)

// RequireRoles returns middleware that allows the request only when the
// principal holds at least one of the given roles. Must run inside
// RequireSession; a request with no principal in context is a 401, a role
// miss or role lookup failure is a 403.
func RequireRoles(authz *rbac.Authorizer, audit Sink, ipSecret string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			allowed, err := authz.Authorize(r.Context(), p.SubjectID, roles)
			if err != nil {
				log.Printf("middleware: role lookup failed for %s: %v", p.SubjectID, err)
			}
			if err != nil || !allowed {
				if audit != nil {
					client := ClientContext(r)
					audit.Append(r.Context(), &auditdomain.Event{
						Kind:                  auditdomain.KindAccessDenied,
						SubjectID:             p.SubjectID,
						ClientFingerprintHash: security.FingerprintIP(client.IP, ipSecret),
						ClientAgent:           client.UserAgent,
						Metadata:              r.Method + " " + r.URL.Path,
					})
				}
				writeError(w, http.StatusForbidden, "ACCESS_DENIED", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
