// Package csrf enforces a double-submit cookie defense on mutating requests.
// The check only applies to cookie-authenticated flows: a request without a
// session cookie is exempt: a request a browser cannot attach the session
// cookie to cannot be ridden by one either.
package csrf

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"time"

	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/security"
)

// HeaderName is the request header trusted client script must echo the
// cookie token into.
const HeaderName = "X-CSRF-Token"

// Policy configures the CSRF cookie. Zero values get defaults from NewGuard.
type Policy struct {
	CookieName        string // default "csrf_token"
	SessionCookieName string // cookie whose presence activates the check
	Domain            string
	Path              string // default "/"
	Secure            bool
	SameSite          http.SameSite // default http.SameSiteLaxMode
	MaxAge            time.Duration // default 30 days
}

// Sink receives rejection events; appends are fire-and-forget.
type Sink interface {
	Append(ctx context.Context, e *auditdomain.Event)
}

// Guard issues CSRF tokens on safe requests and verifies the cookie/header
// pair on mutating ones. The token is not rotated on login or logout; it
// lives for the cookie's full lifetime.
type Guard struct {
	policy   Policy
	sink     Sink
	ipSecret string
}

// NewGuard returns a guard for the given policy, applying defaults for unset
// fields. SessionCookieName must be set; without it the guard cannot tell
// cookie-authenticated requests from bearer flows.
func NewGuard(p Policy) *Guard {
	if p.CookieName == "" {
		p.CookieName = "csrf_token"
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if p.SameSite == 0 {
		p.SameSite = http.SameSiteLaxMode
	}
	if p.MaxAge == 0 {
		p.MaxAge = 30 * 24 * time.Hour
	}
	return &Guard{policy: p}
}

// SetAuditSink wires rejection auditing. ipSecret keys the stored client IP
// fingerprint. sink may stay nil; rejections then go unaudited.
func (g *Guard) SetAuditSink(sink Sink, ipSecret string) {
	g.sink = sink
	g.ipSecret = ipSecret
}

// Middleware wraps next with token issuance and verification.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			if _, err := r.Cookie(g.policy.CookieName); err != nil {
				g.issue(w)
			}
			next.ServeHTTP(w, r)
			return
		}
		if !g.Verify(r) {
			if g.sink != nil {
				g.sink.Append(r.Context(), &auditdomain.Event{
					Kind:                  auditdomain.KindCSRFRejected,
					ClientFingerprintHash: security.FingerprintIP(clientIP(r), g.ipSecret),
					ClientAgent:           r.UserAgent(),
					Metadata:              r.Method + " " + r.URL.Path,
				})
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "CSRF_REJECTED",
				"message": "missing or mismatched CSRF token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Verify reports whether the mutating request passes the double-submit check.
// Requests without a session cookie pass unconditionally (check inactive).
func (g *Guard) Verify(r *http.Request) bool {
	if _, err := r.Cookie(g.policy.SessionCookieName); err != nil {
		return true
	}
	cookie, err := r.Cookie(g.policy.CookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(HeaderName)
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1
}

// issue sets a fresh token in a client-readable cookie. Non-HttpOnly on
// purpose: trusted script must read it to echo it into the request header.
func (g *Guard) issue(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.policy.CookieName,
		Value:    security.NewSessionToken(),
		Domain:   g.policy.Domain,
		Path:     g.policy.Path,
		MaxAge:   int(g.policy.MaxAge.Seconds()),
		Secure:   g.policy.Secure,
		HttpOnly: false,
		SameSite: g.policy.SameSite,
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
