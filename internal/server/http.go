// Package server assembles the HTTP routes and their guard chain. Order on
// protected routes is rate limit, CSRF, session, then roles; each guard
// fails closed independently of the ones after it.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	adminhandler "authcore/internal/admin/handler"
	"authcore/internal/csrf"
	healthhandler "authcore/internal/health/handler"
	identityhandler "authcore/internal/identity/handler"
	"authcore/internal/platform/rbac"
	"authcore/internal/ratelimit"
	"authcore/internal/server/middleware"
	"authcore/internal/session"
)

// RoleAdmin guards the /v1/admin routes.
const RoleAdmin = "admin"

// Deps holds the wired components the router needs.
type Deps struct {
	Identity *identityhandler.HTTP
	Admin    *adminhandler.HTTP
	Health   *healthhandler.HTTP
	Sessions *session.Manager
	Limiter  *ratelimit.Limiter
	CSRF     *csrf.Guard
	Authz    *rbac.Authorizer
	Audit    middleware.Sink

	SessionCookieName string
	IPSecret          string
	// LoginRules throttle the "login" action; they also cover register and
	// password change, which burn the same password-guessing budget.
	LoginRules []ratelimit.Rule
}

// NewHandler builds the route table. The CSRF guard sits inside the rate
// limiter on every route it applies to, so requests that fail the token check
// still burn budget; on safe routes it only issues the token.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	guard := deps.CSRF.Middleware
	requireSession := middleware.RequireSession(deps.Sessions, deps.SessionCookieName)
	requireAdmin := middleware.RequireRoles(deps.Authz, deps.Audit, deps.IPSecret, RoleAdmin)
	loginLimit := middleware.RateLimit{
		Limiter:  deps.Limiter,
		Rules:    deps.LoginRules,
		Action:   "login",
		Account:  emailFromBody,
		Audit:    deps.Audit,
		IPSecret: deps.IPSecret,
	}

	mux.Handle("GET /healthz", guard(http.HandlerFunc(deps.Health.Check)))

	mux.Handle("POST /v1/register", loginLimit.Middleware(guard(http.HandlerFunc(deps.Identity.Register))))
	mux.Handle("POST /v1/login", loginLimit.Middleware(guard(http.HandlerFunc(deps.Identity.Login))))
	mux.Handle("POST /v1/logout", guard(requireSession(http.HandlerFunc(deps.Identity.Logout))))
	mux.Handle("POST /v1/password", loginLimit.Middleware(guard(requireSession(http.HandlerFunc(deps.Identity.ChangePassword)))))
	mux.Handle("GET /v1/sessions", guard(requireSession(http.HandlerFunc(deps.Identity.ListSessions))))
	mux.Handle("POST /v1/sessions/revoke", guard(requireSession(http.HandlerFunc(deps.Identity.RevokeSession))))

	mux.Handle("POST /v1/admin/subjects/status", guard(requireSession(requireAdmin(http.HandlerFunc(deps.Admin.SetSubjectStatus)))))
	mux.Handle("POST /v1/admin/roles/grant", guard(requireSession(requireAdmin(http.HandlerFunc(deps.Admin.GrantRole)))))
	mux.Handle("POST /v1/admin/roles/revoke", guard(requireSession(requireAdmin(http.HandlerFunc(deps.Admin.RevokeRole)))))
	mux.Handle("GET /v1/admin/audit", guard(requireSession(requireAdmin(http.HandlerFunc(deps.Admin.ListAuditEvents)))))

	return mux
}

// emailFromBody peeks the login email out of the JSON body for account-scoped
// rate limiting, restoring the body for the handler. The email is canonical
// (trimmed, lowercased) exactly as the auth service canonicalizes it, so case
// or whitespace variants of one account land in one bucket. A body that does
// not parse yields "" and the account rules are skipped.
func emailFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	var req struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(strings.ToLower(req.Email))
}
