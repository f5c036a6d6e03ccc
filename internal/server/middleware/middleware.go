// Package middleware holds the HTTP guard chain: rate limiting, session
// authentication, and role checks. Guards are composed outermost-first as
// RateLimit, CSRF, RequireSession, RequireRoles; each one fails closed.
package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/session/domain"
)

// SessionCookieName is the default name of the session cookie.
const SessionCookieName = "auth_session"

// Sink is the audit sink consumed by the guards; appends are fire-and-forget.
type Sink interface {
	Append(ctx context.Context, e *auditdomain.Event)
}

// ClientContext extracts the caller's IP and user agent from the request.
// The IP is the connection peer; X-Forwarded-For is deliberately not trusted
// here, strip or resolve it at the edge proxy.
func ClientContext(r *http.Request) domain.ClientContext {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return domain.ClientContext{IP: ip, UserAgent: r.UserAgent()}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}
