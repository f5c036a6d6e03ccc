package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/cache"
	"authcore/internal/identity/service"
	"authcore/internal/security"
	"authcore/internal/server/middleware"
	"authcore/internal/session"
	sessiondomain "authcore/internal/session/domain"
	subjectdomain "authcore/internal/subject/domain"
)

var testParams = security.Argon2Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1}

type memSubjects struct {
	byID    map[string]*subjectdomain.Subject
	byEmail map[string]*subjectdomain.Subject
	creds   map[string]*subjectdomain.Credential
}

func newMemSubjects() *memSubjects {
	return &memSubjects{
		byID:    make(map[string]*subjectdomain.Subject),
		byEmail: make(map[string]*subjectdomain.Subject),
		creds:   make(map[string]*subjectdomain.Credential),
	}
}

func (r *memSubjects) GetByID(ctx context.Context, id string) (*subjectdomain.Subject, error) {
	return r.byID[id], nil
}

func (r *memSubjects) GetByEmail(ctx context.Context, email string) (*subjectdomain.Subject, error) {
	return r.byEmail[email], nil
}

func (r *memSubjects) Create(ctx context.Context, s *subjectdomain.Subject) error {
	r.byID[s.ID] = s
	r.byEmail[s.Email] = s
	return nil
}

func (r *memSubjects) GetCredential(ctx context.Context, subjectID string) (*subjectdomain.Credential, error) {
	return r.creds[subjectID], nil
}

func (r *memSubjects) UpsertCredential(ctx context.Context, c *subjectdomain.Credential) error {
	r.creds[c.SubjectID] = c
	return nil
}

type nopSink struct{}

func (nopSink) Append(ctx context.Context, e *auditdomain.Event) {}

func newTestHandler(t *testing.T) (*HTTP, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(cache.NewMemory(), nil, time.Hour, "ip-secret")
	svc := service.NewAuthService(newMemSubjects(), mgr, security.NewPasswordHasher("pepper", testParams), nopSink{}, "ip-secret")
	return NewHTTP(svc, mgr, CookiePolicy{TTL: time.Hour}), mgr
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func registerAndLogin(t *testing.T, h *HTTP) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Register(rec, postJSON("/v1/register", `{"email":"user@example.com","password":"a-long-password"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: want 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Login(rec, postJSON("/v1/login", `{"email":"user@example.com","password":"a-long-password"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(t, rec)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("login must set the session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if strings.Contains(rec.Body.String(), cookie.Value) {
		t.Error("session id must not appear in the response body")
	}
	return cookie
}

func withPrincipal(req *http.Request, p *sessiondomain.Principal) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), p))
}

func principalFor(t *testing.T, mgr *session.Manager, cookie *http.Cookie) *sessiondomain.Principal {
	t.Helper()
	p, err := mgr.ResolvePrincipal(context.Background(), cookie.Value)
	if err != nil || p == nil {
		t.Fatalf("resolve principal: %v", err)
	}
	return p
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Register(rec, postJSON("/v1/register", `{"email":"user@example.com","password":"a-long-password"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.Register(rec, postJSON("/v1/register", `{"email":"user@example.com","password":"a-long-password"}`))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: want 409, got %d", rec.Code)
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	h, _ := newTestHandler(t)
	registerAndLogin(t, h)

	recWrong := httptest.NewRecorder()
	h.Login(recWrong, postJSON("/v1/login", `{"email":"user@example.com","password":"wrong-password-1"}`))
	recGhost := httptest.NewRecorder()
	h.Login(recGhost, postJSON("/v1/login", `{"email":"ghost@example.com","password":"wrong-password-1"}`))

	if recWrong.Code != http.StatusUnauthorized || recGhost.Code != http.StatusUnauthorized {
		t.Fatalf("want 401/401, got %d/%d", recWrong.Code, recGhost.Code)
	}
	if recWrong.Body.String() != recGhost.Body.String() {
		t.Error("failure bodies must be identical for wrong password and unknown email")
	}
}

func TestLogoutClearsCookieAndSession(t *testing.T) {
	h, mgr := newTestHandler(t)
	cookie := registerAndLogin(t, h)
	p := principalFor(t, mgr, cookie)

	rec := httptest.NewRecorder()
	h.Logout(rec, withPrincipal(postJSON("/v1/logout", ""), p))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: got %d", rec.Code)
	}
	cleared := sessionCookie(t, rec)
	if cleared == nil || cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Errorf("logout must clear the cookie, got %+v", cleared)
	}
	if got, _ := mgr.ResolvePrincipal(context.Background(), cookie.Value); got != nil {
		t.Error("session must not resolve after logout")
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	h, mgr := newTestHandler(t)
	c1 := registerAndLogin(t, h)

	rec := httptest.NewRecorder()
	h.Login(rec, postJSON("/v1/login", `{"email":"user@example.com","password":"a-long-password"}`))
	c2 := sessionCookie(t, rec)
	p1 := principalFor(t, mgr, c1)

	rec = httptest.NewRecorder()
	h.ListSessions(rec, withPrincipal(httptest.NewRequest(http.MethodGet, "/v1/sessions", nil), p1))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var listing struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Sessions) != 2 {
		t.Fatalf("want 2 sessions, got %d", len(listing.Sessions))
	}
	var currents int
	for _, s := range listing.Sessions {
		if s.Current {
			currents++
		}
	}
	if currents != 1 {
		t.Errorf("exactly one session must be marked current, got %d", currents)
	}

	// Revoke the other session; the caller's own survives.
	rec = httptest.NewRecorder()
	body := `{"sessionId":"` + c2.Value + `"}`
	h.RevokeSession(rec, withPrincipal(postJSON("/v1/sessions/revoke", body), p1))
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: got %d", rec.Code)
	}
	if got, _ := mgr.ResolvePrincipal(context.Background(), c2.Value); got != nil {
		t.Error("revoked session must not resolve")
	}
	if got, _ := mgr.ResolvePrincipal(context.Background(), c1.Value); got == nil {
		t.Error("caller's own session must survive")
	}
}

func TestRevokeForeignSessionIsSilent(t *testing.T) {
	h, mgr := newTestHandler(t)
	c1 := registerAndLogin(t, h)
	p1 := principalFor(t, mgr, c1)

	// Another subject's session.
	other, err := mgr.Create(context.Background(), "someone-else", sessiondomain.ClientContext{})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	body := `{"sessionId":"` + other + `"}`
	h.RevokeSession(rec, withPrincipal(postJSON("/v1/sessions/revoke", body), p1))
	if rec.Code != http.StatusOK {
		t.Fatalf("foreign revoke must answer ok, got %d", rec.Code)
	}
	if got, _ := mgr.ResolvePrincipal(context.Background(), other); got == nil {
		t.Error("foreign session must remain live")
	}
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	h, mgr := newTestHandler(t)
	c1 := registerAndLogin(t, h)
	p1 := principalFor(t, mgr, c1)

	rec := httptest.NewRecorder()
	body := `{"currentPassword":"a-long-password","newPassword":"the-new-password"}`
	h.ChangePassword(rec, withPrincipal(postJSON("/v1/password", body), p1))
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := mgr.ResolvePrincipal(context.Background(), c1.Value); got != nil {
		t.Error("current session must be revoked after password change")
	}

	rec = httptest.NewRecorder()
	h.Login(rec, postJSON("/v1/login", `{"email":"user@example.com","password":"the-new-password"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password: got %d", rec.Code)
	}
}
