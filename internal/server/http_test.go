package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adminhandler "authcore/internal/admin/handler"
	auditdomain "authcore/internal/audit/domain"
	"authcore/internal/cache"
	"authcore/internal/csrf"
	healthhandler "authcore/internal/health/handler"
	identityhandler "authcore/internal/identity/handler"
	identityservice "authcore/internal/identity/service"
	"authcore/internal/platform/rbac"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
	"authcore/internal/server/middleware"
	"authcore/internal/session"
	subjectdomain "authcore/internal/subject/domain"
)

var testParams = security.Argon2Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1}

// memDirectory implements the subject repository surfaces every handler in
// the route table consumes.
type memDirectory struct {
	byID    map[string]*subjectdomain.Subject
	byEmail map[string]*subjectdomain.Subject
	creds   map[string]*subjectdomain.Credential
	roles   map[string][]string
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		byID:    make(map[string]*subjectdomain.Subject),
		byEmail: make(map[string]*subjectdomain.Subject),
		creds:   make(map[string]*subjectdomain.Credential),
		roles:   make(map[string][]string),
	}
}

func (d *memDirectory) GetByID(ctx context.Context, id string) (*subjectdomain.Subject, error) {
	return d.byID[id], nil
}

func (d *memDirectory) GetByEmail(ctx context.Context, email string) (*subjectdomain.Subject, error) {
	return d.byEmail[email], nil
}

func (d *memDirectory) Create(ctx context.Context, s *subjectdomain.Subject) error {
	d.byID[s.ID] = s
	d.byEmail[s.Email] = s
	return nil
}

func (d *memDirectory) SetStatus(ctx context.Context, id string, status subjectdomain.Status) error {
	if s := d.byID[id]; s != nil {
		s.Status = status
	}
	return nil
}

func (d *memDirectory) GetCredential(ctx context.Context, subjectID string) (*subjectdomain.Credential, error) {
	return d.creds[subjectID], nil
}

func (d *memDirectory) UpsertCredential(ctx context.Context, c *subjectdomain.Credential) error {
	d.creds[c.SubjectID] = c
	return nil
}

func (d *memDirectory) GetRoles(ctx context.Context, subjectID string) ([]string, error) {
	return d.roles[subjectID], nil
}

func (d *memDirectory) GrantRole(ctx context.Context, subjectID, role string) error {
	d.roles[subjectID] = append(d.roles[subjectID], role)
	return nil
}

func (d *memDirectory) RevokeRole(ctx context.Context, subjectID, role string) error {
	held := d.roles[subjectID]
	out := held[:0]
	for _, r := range held {
		if r != role {
			out = append(out, r)
		}
	}
	d.roles[subjectID] = out
	return nil
}

type nopSink struct{}

func (nopSink) Append(ctx context.Context, e *auditdomain.Event) {}

type testEnv struct {
	handler http.Handler
	dir     *memDirectory
	mgr     *session.Manager
}

func newTestEnv(t *testing.T, loginLimit int) *testEnv {
	t.Helper()
	return newTestEnvRules(t, []ratelimit.Rule{
		{Kind: ratelimit.SubjectIP, Action: "login", Limit: loginLimit, Window: time.Minute},
	})
}

func newTestEnvRules(t *testing.T, rules []ratelimit.Rule) *testEnv {
	t.Helper()
	c := cache.NewMemory()
	mgr := session.NewManager(c, nil, time.Hour, "ip-secret")
	dir := newMemDirectory()
	svc := identityservice.NewAuthService(dir, mgr, security.NewPasswordHasher("pepper", testParams), nopSink{}, "ip-secret")

	deps := Deps{
		Identity: identityhandler.NewHTTP(svc, mgr, identityhandler.CookiePolicy{TTL: time.Hour}),
		Admin:    adminhandler.NewHTTP(dir, mgr, nil, nopSink{}, "ip-secret"),
		Health:   healthhandler.NewHTTP(nil, nil),
		Sessions: mgr,
		Limiter:  ratelimit.NewLimiter(c),
		CSRF: csrf.NewGuard(csrf.Policy{
			SessionCookieName: middleware.SessionCookieName,
		}),
		Authz:             rbac.NewAuthorizer(dir),
		Audit:             nopSink{},
		SessionCookieName: middleware.SessionCookieName,
		IPSecret:          "ip-secret",
		LoginRules:        rules,
	}
	return &testEnv{handler: NewHandler(deps), dir: dir, mgr: mgr}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *testEnv) registerAndLogin(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(postJSON("/v1/register", `{"email":"user@example.com","password":"a-long-password"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d: %s", rec.Code, rec.Body.String())
	}
	rec = e.do(postJSON("/v1/login", `{"email":"user@example.com","password":"a-long-password"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := cookieNamed(rec, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("login must set the session cookie")
	}
	return cookie
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d", rec.Code)
	}
	if cookieNamed(rec, "csrf_token") == nil {
		t.Error("safe request must receive a CSRF token cookie")
	}
}

func TestLoginWithoutSessionCookieSkipsCSRF(t *testing.T) {
	env := newTestEnv(t, 10)
	// No session cookie on the request, so the CSRF guard stands aside even
	// though login is a mutating method.
	env.registerAndLogin(t)
}

func TestMutatingAuthedRequestNeedsCSRF(t *testing.T) {
	env := newTestEnv(t, 10)
	sess := env.registerAndLogin(t)

	req := postJSON("/v1/logout", "")
	req.AddCookie(sess)
	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("logout without CSRF pair: want 403, got %d", rec.Code)
	}

	token := security.NewSessionToken()
	req = postJSON("/v1/logout", "")
	req.AddCookie(sess)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	req.Header.Set(csrf.HeaderName, token)
	rec = env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout with CSRF pair: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRouteWithoutSession(t *testing.T) {
	env := newTestEnv(t, 10)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("sessions without cookie: want 401, got %d", rec.Code)
	}
}

func TestAdminRouteRequiresRole(t *testing.T) {
	env := newTestEnv(t, 10)
	sess := env.registerAndLogin(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit?subjectId=U1", nil)
	req.AddCookie(sess)
	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: want 403, got %d", rec.Code)
	}

	p, err := env.mgr.ResolvePrincipal(context.Background(), sess.Value)
	if err != nil || p == nil {
		t.Fatalf("resolve: %v", err)
	}
	env.dir.roles[p.SubjectID] = []string{"admin"}

	rec = env.do(req)
	// Audit store is not configured in this env; reaching 503 proves the
	// role guard passed.
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("admin: want 503, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	body := `{"email":"user@example.com","password":"wrong-password-1"}`
	for i := 0; i < 2; i++ {
		if rec := env.do(postJSON("/v1/login", body)); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: want 401, got %d", i+1, rec.Code)
		}
	}
	rec := env.do(postJSON("/v1/login", body))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: want 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
}

func TestLoginAccountBudgetIgnoresEmailCase(t *testing.T) {
	env := newTestEnvRules(t, []ratelimit.Rule{
		{Kind: ratelimit.SubjectAccount, Action: "login", Limit: 2, Window: time.Minute},
	})
	for i := 0; i < 2; i++ {
		body := `{"email":"user@example.com","password":"wrong-password-1"}`
		if rec := env.do(postJSON("/v1/login", body)); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: want 401, got %d", i+1, rec.Code)
		}
	}
	// A case or whitespace variant targets the same account and must land in
	// the same bucket.
	rec := env.do(postJSON("/v1/login", `{"email":"  USER@Example.COM ","password":"wrong-password-1"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("variant spelling: want 429, got %d", rec.Code)
	}
}

func TestCSRFFailuresConsumeLoginBudget(t *testing.T) {
	env := newTestEnvRules(t, []ratelimit.Rule{
		{Kind: ratelimit.SubjectIP, Action: "login", Limit: 3, Window: time.Minute},
	})
	sess := env.registerAndLogin(t) // burns two attempts against the IP bucket

	req := postJSON("/v1/password", `{"currentPassword":"a-long-password","newPassword":"the-new-password"}`)
	req.AddCookie(sess)
	rec := env.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing CSRF pair: want 403, got %d", rec.Code)
	}

	req = postJSON("/v1/password", `{"currentPassword":"a-long-password","newPassword":"the-new-password"}`)
	req.AddCookie(sess)
	rec = env.do(req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("limiter must run before the CSRF guard: want 429, got %d", rec.Code)
	}
}
