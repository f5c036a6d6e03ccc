// Package handler exposes the identity flows over HTTP/JSON. Handlers stay
// thin: decode, call the service, map sentinel errors to statuses, encode.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"authcore/internal/identity/service"
	"authcore/internal/server/middleware"
	"authcore/internal/session"
)

// CookiePolicy configures the session cookie the login handler issues.
type CookiePolicy struct {
	Name   string // default middleware.SessionCookieName
	Domain string
	Path   string // default "/"
	Secure bool
	TTL    time.Duration
}

// HTTP serves register, login, logout, password change, and the caller's
// session listing and revocation.
type HTTP struct {
	auth     *service.AuthService
	sessions *session.Manager
	cookie   CookiePolicy
}

// NewHTTP returns the identity handler, applying cookie policy defaults.
func NewHTTP(auth *service.AuthService, sessions *session.Manager, cookie CookiePolicy) *HTTP {
	if cookie.Name == "" {
		cookie.Name = middleware.SessionCookieName
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	return &HTTP{auth: auth, sessions: sessions, cookie: cookie}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type sessionView struct {
	ID                    string    `json:"id"`
	CreatedAt             time.Time `json:"createdAt"`
	ExpiresAt             time.Time `json:"expiresAt"`
	Revoked               bool      `json:"revoked"`
	ClientFingerprintHash string    `json:"clientFingerprintHash"`
	ClientAgent           string    `json:"clientAgent"`
	Current               bool      `json:"current"`
}

// Register handles POST /v1/register.
func (h *HTTP) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	id, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			writeError(w, http.StatusConflict, "EMAIL_TAKEN", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"subjectId": id})
}

// Login handles POST /v1/login. On success the opaque session id is set as
// an HttpOnly cookie; it never appears in the response body.
func (h *HTTP) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	id, err := h.auth.Login(r.Context(), req.Email, req.Password, middleware.ClientContext(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}
	h.setSessionCookie(w, id, h.cookie.TTL)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Logout handles POST /v1/logout. Requires a session; clears the cookie
// either way.
func (h *HTTP) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	if err := h.auth.Logout(r.Context(), p.SessionID, p.SubjectID, middleware.ClientContext(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "logout failed")
		return
	}
	h.setSessionCookie(w, "", -time.Second)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChangePassword handles POST /v1/password. Every session of the subject is
// revoked on success, including the current one; the cookie is cleared.
func (h *HTTP) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	err := h.auth.ChangePassword(r.Context(), p.SubjectID, req.CurrentPassword, req.NewPassword, middleware.ClientContext(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	h.setSessionCookie(w, "", -time.Second)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListSessions handles GET /v1/sessions: the caller's own sessions.
func (h *HTTP) ListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	summaries, err := h.sessions.ListForSubject(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "session listing failed")
		return
	}
	views := make([]sessionView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, sessionView{
			ID:                    s.ID,
			CreatedAt:             s.CreatedAt,
			ExpiresAt:             s.ExpiresAt,
			Revoked:               s.Revoked,
			ClientFingerprintHash: s.ClientFingerprintHash,
			ClientAgent:           s.ClientAgent,
			Current:               s.ID == p.SessionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]sessionView{"sessions": views})
}

// RevokeSession handles POST /v1/sessions/revoke: revoke one of the caller's
// own sessions by id. Revoking a session the caller does not own is a no-op
// that still answers ok; existence is not disclosed.
func (h *HTTP) RevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		return
	}
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "sessionId is required")
		return
	}
	if err := h.auth.RevokeSession(r.Context(), p.SubjectID, req.SessionID, middleware.ClientContext(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "session revoke failed")
		return
	}
	if req.SessionID == p.SessionID {
		h.setSessionCookie(w, "", -time.Second)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTP) setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Domain:   h.cookie.Domain,
		Path:     h.cookie.Path,
		MaxAge:   int(ttl.Seconds()),
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
