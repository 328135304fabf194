package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindnest/auth-service/internal/core/domain"
	"github.com/mindnest/auth-service/internal/core/ports"
	"github.com/mindnest/auth-service/internal/core/service"
	"github.com/mindnest/auth-service/internal/infrastructure/db/memory"
	"github.com/mindnest/auth-service/internal/infrastructure/propagation"
	"github.com/mindnest/auth-service/internal/infrastructure/ratelimit"
	"github.com/mindnest/auth-service/internal/infrastructure/security"
)

type recordingPropagator struct {
	mu    sync.Mutex
	calls []ports.PropagationTrigger
}

func (p *recordingPropagator) Propagate(_ domain.Account, trigger ports.PropagationTrigger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, trigger)
}

type testApp struct {
	e       *echo.Echo
	service *service.AuthService
	tokens  *security.TokenEngine
}

type appOptions struct {
	general        ratelimit.Policy
	admin          ratelimit.Policy
	propagator     ports.IdentityPropagator
	debug          bool
	trustedProxies []*net.IPNet
}

func newTestApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()
	tokens, err := security.NewTokenEngine("router-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenEngine: %v", err)
	}
	if opts.general.Limit == 0 {
		opts.general = ratelimit.GeneralPolicy
	}
	if opts.admin.Limit == 0 {
		opts.admin = ratelimit.AdminPolicy
	}
	if opts.propagator == nil {
		opts.propagator = &recordingPropagator{}
	}

	repo := memory.NewAccountRepository()
	svc := service.NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), tokens, opts.propagator, zerolog.Nop())
	store := ratelimit.NewMemoryStore()

	e := NewRouter(Dependencies{
		Service:        svc,
		Tokens:         tokens,
		GeneralLimiter: ratelimit.NewLimiter(opts.general, store),
		AdminLimiter:   ratelimit.NewLimiter(opts.admin, store),
		Log:            zerolog.Nop(),
		RoutePrefix:    "/api/auth",
		Registry:       prometheus.NewRegistry(),
		Debug:          opts.debug,
		TrustedProxies: opts.trustedProxies,
	})
	return &testApp{e: e, service: svc, tokens: tokens}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
	Error string `json:"error"`
}

type authPayload struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	} `json:"tokens"`
}

func (a *testApp) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return a.serve(t, req)
}

func (a *testApp) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func decodeAuth(t *testing.T, env envelope) authPayload {
	t.Helper()
	var p authPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return p
}

func TestRouter_AliceScenario(t *testing.T) {
	app := newTestApp(t, appOptions{})

	rec, env := app.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"alice@example.com","password":"Str0ng!Pass","role":"user"}`)
	if rec.Code != http.StatusCreated || !env.Success || env.Message != "User registered successfully" {
		t.Fatalf("register: %d %+v", rec.Code, env)
	}
	registered := decodeAuth(t, env)
	if registered.Tokens.AccessToken == "" || registered.Tokens.RefreshToken == "" {
		t.Fatal("register returned no tokens")
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"alice@example.com","password":"Str0ng!Pass"}`)
	if rec.Code != http.StatusOK || env.Message != "Login successful" {
		t.Fatalf("login: %d %+v", rec.Code, env)
	}
	loggedIn := decodeAuth(t, env)
	if loggedIn.Tokens.AccessToken == registered.Tokens.AccessToken {
		t.Fatal("login reissued the registration access token")
	}

	first, err := app.tokens.Verify(registered.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify registration token: %v", err)
	}
	second, err := app.tokens.Verify(loggedIn.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify login token: %v", err)
	}
	if first.Subject != second.Subject || first.Subject != loggedIn.User.ID {
		t.Fatalf("subjects differ: %q %q", first.Subject, second.Subject)
	}

	rec, env = app.do(t, http.MethodGet, "/api/auth/profile", loggedIn.Tokens.AccessToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: %d %+v", rec.Code, env)
	}
	if p := decodeAuth(t, env); p.User.Email != "alice@example.com" || p.User.Role != "user" {
		t.Fatalf("profile user = %+v", p.User)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatal("profile leaks password data")
	}

	rec, env = app.do(t, http.MethodGet, "/api/auth/profile", loggedIn.Tokens.RefreshToken, "")
	if rec.Code != http.StatusUnauthorized || env.Success || env.Message != "Invalid or expired token" {
		t.Fatalf("profile with refresh token: %d %+v", rec.Code, env)
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/refresh-token", "",
		`{"refreshToken":"`+loggedIn.Tokens.RefreshToken+`"}`)
	if rec.Code != http.StatusOK || env.Message != "Token refreshed successfully" {
		t.Fatalf("refresh: %d %+v", rec.Code, env)
	}
	if p := decodeAuth(t, env); p.Tokens.AccessToken == "" {
		t.Fatal("refresh returned no access token")
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/refresh-token", "",
		`{"refreshToken":"`+loggedIn.Tokens.AccessToken+`"}`)
	if rec.Code != http.StatusUnauthorized || env.Message != "Invalid or expired token" {
		t.Fatalf("refresh with access token: %d %+v", rec.Code, env)
	}

	rec, env = app.do(t, http.MethodGet, "/api/auth/verify-token", loggedIn.Tokens.AccessToken, "")
	if rec.Code != http.StatusOK || env.Message != "Token is valid" {
		t.Fatalf("verify-token: %d %+v", rec.Code, env)
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/logout", loggedIn.Tokens.AccessToken, "")
	if rec.Code != http.StatusOK || env.Message != "Logout successful" {
		t.Fatalf("logout: %d %+v", rec.Code, env)
	}
}

func TestRouter_RegisterErrors(t *testing.T) {
	app := newTestApp(t, appOptions{})
	body := `{"email":"bob@example.com","password":"Str0ng!Pass"}`

	if rec, env := app.do(t, http.MethodPost, "/api/auth/register", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register: %d %+v", rec.Code, env)
	}

	rec, env := app.do(t, http.MethodPost, "/api/auth/register", "", body)
	if rec.Code != http.StatusConflict || env.Message != "User with this email already exists" {
		t.Fatalf("duplicate: %d %+v", rec.Code, env)
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"not-an-email","password":"weak","role":"admin"}`)
	if rec.Code != http.StatusBadRequest || env.Message != "Validation failed" {
		t.Fatalf("invalid: %d %+v", rec.Code, env)
	}
	fields := map[string]bool{}
	for _, fe := range env.Errors {
		fields[fe.Field] = true
	}
	for _, f := range []string{"email", "password", "role"} {
		if !fields[f] {
			t.Errorf("missing field error for %s in %+v", f, env.Errors)
		}
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"bob@example.com","password":"Wr0ng!Pass"}`)
	if rec.Code != http.StatusUnauthorized || env.Message != "Invalid email or password" {
		t.Fatalf("wrong password: %d %+v", rec.Code, env)
	}
	rec, env = app.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"nobody@example.com","password":"Str0ng!Pass"}`)
	if rec.Code != http.StatusUnauthorized || env.Message != "Invalid email or password" {
		t.Fatalf("unknown email: %d %+v", rec.Code, env)
	}
}

func TestRouter_MissingToken(t *testing.T) {
	app := newTestApp(t, appOptions{})
	rec, env := app.do(t, http.MethodGet, "/api/auth/profile", "", "")
	if rec.Code != http.StatusUnauthorized || env.Message != "Access token is required" {
		t.Fatalf("profile without token: %d %+v", rec.Code, env)
	}
}

func TestRouter_Session(t *testing.T) {
	app := newTestApp(t, appOptions{})

	rec, env := app.do(t, http.MethodGet, "/api/auth/session", "", "")
	if rec.Code != http.StatusOK || env.Message != "Anonymous session" {
		t.Fatalf("anonymous: %d %+v", rec.Code, env)
	}
	rec, env = app.do(t, http.MethodGet, "/api/auth/session", "garbage", "")
	if rec.Code != http.StatusOK || env.Message != "Anonymous session" {
		t.Fatalf("invalid token: %d %+v", rec.Code, env)
	}

	_, env = app.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"carol@example.com","password":"Str0ng!Pass"}`)
	p := decodeAuth(t, env)
	rec, env = app.do(t, http.MethodGet, "/api/auth/session", p.Tokens.AccessToken, "")
	if rec.Code != http.StatusOK || env.Message != "Authenticated session" {
		t.Fatalf("authenticated: %d %+v", rec.Code, env)
	}
	var data struct {
		Authenticated bool `json:"authenticated"`
		User          struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if !data.Authenticated || data.User.Email != "carol@example.com" {
		t.Fatalf("session data = %+v", data)
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	app := newTestApp(t, appOptions{})
	ctx := context.Background()

	if _, err := app.service.CreateAdmin(ctx, "root@example.com", "Str0ng!Pass"); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	_, env := app.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"root@example.com","password":"Str0ng!Pass"}`)
	adminToken := decodeAuth(t, env).Tokens.AccessToken

	_, env = app.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"dave@example.com","password":"Str0ng!Pass"}`)
	userToken := decodeAuth(t, env).Tokens.AccessToken

	rec, env := app.do(t, http.MethodGet, "/api/auth/admin/users", userToken, "")
	if rec.Code != http.StatusForbidden || env.Message != "Insufficient permissions" {
		t.Fatalf("user on admin route: %d %+v", rec.Code, env)
	}
	rec, env = app.do(t, http.MethodGet, "/api/auth/admin/users", "", "")
	if rec.Code != http.StatusUnauthorized || env.Message != "Access token is required" {
		t.Fatalf("anonymous on admin route: %d %+v", rec.Code, env)
	}

	rec, env = app.do(t, http.MethodPost, "/api/auth/admin/create", adminToken,
		`{"email":"ops@example.com","password":"Str0ng!Pass"}`)
	if rec.Code != http.StatusCreated || env.Message != "Admin user created successfully" {
		t.Fatalf("admin create: %d %+v", rec.Code, env)
	}
	if p := decodeAuth(t, env); p.User.Role != "admin" {
		t.Fatalf("created role = %q", p.User.Role)
	}

	rec, env = app.do(t, http.MethodGet, "/api/auth/admin/users?limit=2", adminToken, "")
	if rec.Code != http.StatusOK || env.Message != "Users retrieved successfully" {
		t.Fatalf("list: %d %+v", rec.Code, env)
	}
	var page struct {
		Users      []map[string]any `json:"users"`
		Pagination struct {
			Total int64 `json:"total"`
			Limit int   `json:"limit"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Users) != 2 || page.Pagination.Total != 3 || page.Pagination.Limit != 2 {
		t.Fatalf("page = %+v", page)
	}

	rec, _ = app.do(t, http.MethodGet, "/api/auth/admin/users?limit=500", adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit above max: %d", rec.Code)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	app := newTestApp(t, appOptions{
		general: ratelimit.Policy{Name: "general", Limit: 2, Window: time.Minute},
	})
	body := `{"email":"eve@example.com","password":"Str0ng!Pass"}`

	for i := 0; i < 2; i++ {
		rec, _ := app.do(t, http.MethodPost, "/api/auth/login", "", body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: %d", i+1, rec.Code)
		}
	}
	for i := 0; i < 3; i++ {
		rec, env := app.do(t, http.MethodPost, "/api/auth/login", "", body)
		if rec.Code != http.StatusTooManyRequests || env.Message != "Too many requests, please try again later" {
			t.Fatalf("request %d: %d %+v", i+3, rec.Code, env)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Fatal("Retry-After header missing")
		}
	}

	// Routes without a limiter are unaffected.
	if rec, _ := app.do(t, http.MethodGet, "/api/auth/session", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("session: %d", rec.Code)
	}
}

func TestRouter_PropagationFanOut(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer downstream.Close()

	d := propagation.NewDispatcher(propagation.Config{
		Workers: 1,
		Targets: []propagation.Target{
			propagation.UserServiceTarget(downstream.URL),
			propagation.TherapistServiceTarget(downstream.URL),
		},
	}, zerolog.Nop())
	d.Start(context.Background())

	app := newTestApp(t, appOptions{propagator: d})
	app.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"psy@example.com","password":"Str0ng!Pass","role":"psychiatrist"}`)
	app.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"frank@example.com","password":"Str0ng!Pass","role":"user"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	counts := map[string]int{}
	mu.Lock()
	for _, p := range paths {
		counts[p]++
	}
	mu.Unlock()
	if counts["/api/users/create"] != 2 || counts["/api/therapists/create"] != 1 {
		t.Fatalf("downstream calls = %v", counts)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	app := newTestApp(t, appOptions{})

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		rec, _ := app.do(t, http.MethodGet, path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: %d", path, rec.Code)
		}
	}
}

func TestRouter_DebugKeepsTokenFailuresOpaque(t *testing.T) {
	app := newTestApp(t, appOptions{debug: true})

	_, env := app.do(t, http.MethodPost, "/api/auth/register", "",
		`{"email":"grace@example.com","password":"Str0ng!Pass"}`)
	pair := decodeAuth(t, env).Tokens

	past, err := security.NewTokenEngine("router-test-secret", time.Hour,
		security.WithClock(func() time.Time { return time.Now().Add(-3 * time.Hour) }))
	if err != nil {
		t.Fatal(err)
	}
	other, err := security.NewTokenEngine("another-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	acc := &domain.Account{ID: decodeAuth(t, env).User.ID, Email: "grace@example.com", Role: domain.RoleUser}
	expired, err := past.IssueAccess(acc)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.IssueAccess(acc)
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"refresh token": pair.RefreshToken,
		"expired":       expired,
		"wrong secret":  forged,
		"garbage":       "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rec, env := app.do(t, http.MethodGet, "/api/auth/profile", token, "")
			if rec.Code != http.StatusUnauthorized || env.Message != "Invalid or expired token" {
				t.Fatalf("got %d %+v", rec.Code, env)
			}
			if strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("failure detail exposed: %s", rec.Body.String())
			}
		})
	}

	rec, _ := app.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"nobody@example.com","password":"Str0ng!Pass"}`)
	if strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("login failure detail exposed: %s", rec.Body.String())
	}
}

func TestRouter_RateLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	app := newTestApp(t, appOptions{
		general: ratelimit.Policy{Name: "general", Limit: 2, Window: time.Minute},
	})

	rejected := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-token", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("198.51.100.%d", i+1))
		if rec, _ := app.serve(t, req); rec.Code == http.StatusTooManyRequests {
			rejected++
		}
	}
	if rejected != 8 {
		t.Fatalf("rejected = %d, want 8", rejected)
	}
}

func TestRouter_RateLimitBehindTrustedProxy(t *testing.T) {
	_, proxy, _ := net.ParseCIDR("203.0.113.0/24")
	app := newTestApp(t, appOptions{
		general:        ratelimit.Policy{Name: "general", Limit: 2, Window: time.Minute},
		trustedProxies: []*net.IPNet{proxy},
	})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-token", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set(echo.HeaderXForwardedFor, client)
		rec, _ := app.serve(t, req)
		return rec.Code
	}

	// Each forwarded client gets its own budget.
	for i := 0; i < 2; i++ {
		for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
			if code := send(client); code == http.StatusTooManyRequests {
				t.Fatalf("client %s limited early", client)
			}
		}
	}
	if code := send("198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("third request from same client: %d", code)
	}
}
