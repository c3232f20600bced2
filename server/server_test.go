package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/identity/localprovider"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/token/refresh/sqlrepo"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testEmail    = "jane@example.com"
	testPassword = "Passw0rdOne"
	allowedSite  = "https://app.example.com"
)

type codes struct {
	lock sync.Mutex
	last map[string]string
}

func (c *codes) SendCode(_ context.Context, _ string, purpose, code string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.last[purpose] = code
	return nil
}

func (c *codes) get(purpose string) string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.last[purpose]
}

type testServer struct {
	server   *server.Server
	provider *localprovider.Provider
	registry refresh.Registry
	codes    *codes
	codec    sessions.CookieCodec
}

type setupOptions struct {
	demo     bool
	registry refresh.Registry
	rules    server.PathRules
	provider func(*localprovider.Provider) identity.Provider
}

func setupServer(t *testing.T, opts setupOptions) *testServer {
	t.Helper()
	t.Setenv("ENV", "DEV")
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("CORS_ALLOWED_ORIGINS", allowedSite)
	cfg := config.New()
	require.NoError(t, config.Validate(cfg))

	issuer, err := token.NewIssuer(cfg.GetSessionSecret())
	require.NoError(t, err)
	registry := opts.registry
	if registry == nil {
		registry = refresh.NewMemoryRegistry()
	}
	sent := &codes{last: map[string]string{}}
	provider := localprovider.New(localprovider.WithCodeSender(sent))
	_, err = provider.AddUser(testEmail, testPassword, "Jane", false)
	require.NoError(t, err)

	codec := sessions.NewCookieCodec(sessions.CookieConfig{
		Secure:     cfg.GetCookieSecure(),
		AccessTTL:  cfg.GetAccessTokenTTL(),
		RefreshTTL: cfg.GetRefreshTokenTTL(),
	})
	serviceOpts := []sessions.Option{sessions.WithTokenTTL(cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL())}
	var serverOpts []server.Option
	if opts.demo {
		demo := sessions.DefaultDemoAccounts()
		serviceOpts = append(serviceOpts, sessions.WithDemoAccounts(demo))
		serverOpts = append(serverOpts, server.WithDemoAccounts(demo))
	}
	if opts.rules != nil {
		serverOpts = append(serverOpts, server.WithPathRules(opts.rules))
	}
	var idp identity.Provider = provider
	if opts.provider != nil {
		idp = opts.provider(provider)
	}
	service := sessions.NewService(idp, issuer, registry, codec, serviceOpts...)

	srv, err := server.New(cfg, service, idp, registry, serverOpts...)
	require.NoError(t, err)
	registerPages(srv)
	return &testServer{server: srv, provider: provider, registry: registry, codes: sent, codec: codec}
}

// registerPages stands in for the application's own pages behind the gate.
func registerPages(srv *server.Server) {
	srv.RegisterRouteFunc("GET /login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("login"))
	})
	srv.RegisterRouteFunc("GET /register", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("register"))
	})
	srv.RegisterRouteFunc("GET /static/app.css", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("body{}"))
	})
	srv.RegisterRouteFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		session, ok := server.SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		name := session.Identity.Name
		if session.Demo {
			name += " (demo)"
		}
		_, _ = w.Write([]byte(name))
	})
}

func (ts *testServer) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, target, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, r)
	return w
}

func (ts *testServer) login(t *testing.T) []*http.Cookie {
	t.Helper()
	w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 3)
	return cookies
}

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Session *struct {
			Identity struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"identity"`
			Authenticated bool `json:"authenticated"`
			Demo          bool `json:"demo"`
		} `json:"session"`
		Challenge *struct {
			Name    string `json:"name"`
			Session string `json:"session"`
		} `json:"challenge"`
		ProviderAccessToken string `json:"provider_access_token"`
		RedirectTo          string `json:"redirect_to"`
		Message             string `json:"message"`
		Status              string `json:"status"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Name    string `json:"name"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireDeletionCookies(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 3)
	for _, c := range cookies {
		require.True(t, c.MaxAge < 0, c.Name)
	}
}

func TestAccessGate(t *testing.T) {
	ts := setupServer(t, setupOptions{})

	t.Run("protected path redirects to login with callback", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/dashboard?tab=1", nil)
		require.Equal(t, http.StatusSeeOther, w.Code)
		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/login", location.Path)
		require.Equal(t, "/dashboard?tab=1", location.Query().Get("callbackUrl"))
	})

	t.Run("bootstrap endpoints are never redirected", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, server.RouteAuthSession, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Empty(t, w.Header().Get("Location"))

		w = ts.do(t, http.MethodGet, server.RouteHealth, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("static assets are public", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/static/app.css", nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("auth-only page is shown without a session", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/login?callbackUrl=%2Fdashboard", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "login", w.Body.String())
	})

	cookies := ts.login(t)

	t.Run("session forwards with security headers", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/", nil, cookies...)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "Jane")
		require.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
		require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		require.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	})

	t.Run("auth-only pages send signed-in users home", func(t *testing.T) {
		for _, page := range []string{"/login", "/register"} {
			w := ts.do(t, http.MethodGet, page, nil, cookies...)
			require.Equal(t, http.StatusSeeOther, w.Code, page)
			require.Equal(t, "/", w.Header().Get("Location"))
		}
	})

	t.Run("abandoned request gets no response", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := httptest.NewRequest(http.MethodGet, "/dashboard", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		ts.server.ServeHTTP(w, r)
		require.Empty(t, w.Header().Get("Location"))
		require.Empty(t, w.Header().Values("Set-Cookie"))
		require.Zero(t, w.Body.Len())
	})
}

func TestPathRules(t *testing.T) {
	rules := server.DefaultPathRules("/login", "/register")
	require.Equal(t, server.PathBootstrap, rules.Classify("/api/auth/login"))
	require.Equal(t, server.PathBootstrap, rules.Classify("/healthz"))
	require.Equal(t, server.PathPublic, rules.Classify("/static/app.css"))
	require.Equal(t, server.PathAuthOnly, rules.Classify("/login"))
	require.Equal(t, server.PathAuthOnly, rules.Classify("/register"))
	require.Equal(t, server.PathProtected, rules.Classify("/api/authx"))
	require.Equal(t, server.PathProtected, rules.Classify("/"))
}

func TestCustomPathRules(t *testing.T) {
	rules := append(server.PathRules{{Path: "/about", Class: server.PathPublic}}, server.DefaultPathRules("/login", "/register")...)
	ts := setupServer(t, setupOptions{rules: rules})

	// public but unrouted, so the mux answers rather than the gate
	w := ts.do(t, http.MethodGet, "/about", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
}

func TestLogin(t *testing.T) {
	ts := setupServer(t, setupOptions{})

	t.Run("success", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": testEmail, "password": testPassword})
		require.Equal(t, http.StatusOK, w.Code)
		out := decode(t, w)
		require.True(t, out.Success)
		require.Equal(t, testEmail, out.Data.Session.Identity.Email)
		require.NotEmpty(t, out.Data.ProviderAccessToken)
		for _, c := range w.Result().Cookies() {
			require.True(t, c.HttpOnly)
			require.Equal(t, http.SameSiteStrictMode, c.SameSite)
		}
	})

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		wrong := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": testEmail, "password": "Nope0000X"})
		unknown := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": "nobody@example.com", "password": "Nope0000X"})
		require.Equal(t, http.StatusUnauthorized, wrong.Code)
		require.Equal(t, wrong.Code, unknown.Code)
		require.Equal(t, "Incorrect email or password.", decode(t, wrong).Error.Message)
		require.Equal(t, decode(t, wrong).Error.Message, decode(t, unknown).Error.Message)
		require.Empty(t, wrong.Result().Cookies())
	})

	t.Run("validation", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": "not-an-email", "password": testPassword})
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "ValidationError", decode(t, w).Error.Name)

		w = ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": testEmail})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("callback is echoed as redirect", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{
			"email": testEmail, "password": testPassword, "callback_url": "/dashboard?tab=1",
		})
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "/dashboard?tab=1", decode(t, w).Data.RedirectTo)
	})

	t.Run("off-site callback is replaced with home", func(t *testing.T) {
		for _, callback := range []string{"//evil.example.com", "https://evil.example.com", `/\evil.example.com`, ""} {
			w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{
				"email": testEmail, "password": testPassword, "callback_url": callback,
			})
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "/", decode(t, w).Data.RedirectTo, callback)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, strings.NewReader("{"))
		w := httptest.NewRecorder()
		ts.server.ServeHTTP(w, r)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestNewPasswordChallenge(t *testing.T) {
	ts := setupServer(t, setupOptions{})
	_, err := ts.provider.AddUser("temp@example.com", testPassword, "Temp", true)
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": "temp@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Result().Cookies())
	out := decode(t, w)
	require.NotNil(t, out.Data.Challenge)
	require.Equal(t, "NEW_PASSWORD_REQUIRED", out.Data.Challenge.Name)

	w = ts.do(t, http.MethodPost, server.RouteAuthChallenge, map[string]string{
		"email":        "temp@example.com",
		"session":      out.Data.Challenge.Session,
		"new_password": "BrandNew1x",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, w.Result().Cookies(), 3)
}

func TestSignupAndConfirm(t *testing.T) {
	ts := setupServer(t, setupOptions{})

	w := ts.do(t, http.MethodPost, server.RouteAuthSignup, map[string]string{"email": "new@example.com", "password": testPassword, "name": "New"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": "new@example.com", "password": testPassword})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "UserNotConfirmedException", decode(t, w).Error.Code)

	w = ts.do(t, http.MethodPost, server.RouteAuthConfirm, map[string]string{"email": "new@example.com", "code": "000000x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	code := ts.codes.get(localprovider.PurposeConfirmSignUp)
	require.NotEmpty(t, code)
	w = ts.do(t, http.MethodPost, server.RouteAuthConfirm, map[string]string{"email": "new@example.com", "code": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": "new@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestForgotPassword(t *testing.T) {
	ts := setupServer(t, setupOptions{})

	known := ts.do(t, http.MethodPost, server.RouteAuthForgotPassword, map[string]string{"email": testEmail})
	unknown := ts.do(t, http.MethodPost, server.RouteAuthForgotPassword, map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, known.Body.String(), unknown.Body.String())

	code := ts.codes.get(localprovider.PurposeForgotPassword)
	require.NotEmpty(t, code)
	w := ts.do(t, http.MethodPost, server.RouteAuthConfirmForgotPasswd, map[string]string{
		"email":        testEmail,
		"code":         code,
		"new_password": "Changed1x",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": testEmail, "password": "Changed1x"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	ts := setupServer(t, setupOptions{})
	cookies := ts.login(t)

	var refreshCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == ts.codec.RefreshName() {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie)

	t.Run("refresh rewrites only the access cookie", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, server.RouteAuthRefresh, nil, refreshCookie)
		require.Equal(t, http.StatusOK, w.Code)
		set := w.Result().Cookies()
		require.Len(t, set, 1)
		require.Equal(t, ts.codec.AccessName(), set[0].Name)
	})

	t.Run("session endpoint refreshes silently", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, server.RouteAuthSession, nil, refreshCookie)
		require.Equal(t, http.StatusOK, w.Code)
		require.True(t, decode(t, w).Data.Session.Authenticated)
		require.Len(t, w.Result().Cookies(), 1)
	})

	t.Run("logout clears cookies and revokes", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, server.RouteAuthLogout, nil, cookies...)
		require.Equal(t, http.StatusOK, w.Code)
		requireDeletionCookies(t, w)

		w = ts.do(t, http.MethodPost, server.RouteAuthRefresh, nil, refreshCookie)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		requireDeletionCookies(t, w)
	})

	t.Run("logout without a session", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, server.RouteAuthLogout, nil)
		require.Equal(t, http.StatusOK, w.Code)
		requireDeletionCookies(t, w)
	})
}

func TestLogoutEndsProviderSession(t *testing.T) {
	ts := setupServer(t, setupOptions{})

	w := ts.do(t, http.MethodPost, server.RouteAuthLogin, map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	providerToken := decode(t, w).Data.ProviderAccessToken

	w = ts.do(t, http.MethodPost, server.RouteAuthLogout, map[string]string{"provider_access_token": providerToken}, w.Result().Cookies()...)
	require.Equal(t, http.StatusOK, w.Code)

	result := ts.provider.GetIdentity(context.Background(), providerToken)
	require.False(t, result.Success)
}

// silentFailure reports a failed sign out with no error detail.
type silentFailure struct {
	*localprovider.Provider
}

func (silentFailure) GlobalSignOut(context.Context, string) identity.Result[identity.Empty] {
	return identity.Result[identity.Empty]{}
}

func TestLogoutSurvivesProviderFailure(t *testing.T) {
	ts := setupServer(t, setupOptions{provider: func(p *localprovider.Provider) identity.Provider {
		return silentFailure{Provider: p}
	}})
	cookies := ts.login(t)

	w := ts.do(t, http.MethodPost, server.RouteAuthLogout, map[string]string{"provider_access_token": "unknown"}, cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	requireDeletionCookies(t, w)
}

func TestDemoLogin(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		ts := setupServer(t, setupOptions{demo: true})

		w := ts.do(t, http.MethodPost, server.RouteAuthDemo, map[string]string{"account": "demo"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.True(t, decode(t, w).Data.Session.Demo)

		w = ts.do(t, http.MethodGet, "/", nil, w.Result().Cookies()...)
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "(demo)")

		w = ts.do(t, http.MethodPost, server.RouteAuthDemo, map[string]string{"account": "other"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		ts := setupServer(t, setupOptions{})
		w := ts.do(t, http.MethodPost, server.RouteAuthDemo, map[string]string{"account": "demo"})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("refused in production", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("SESSION_SECRET", testSecret)
		cfg := config.New()
		issuer, err := token.NewIssuer(testSecret)
		require.NoError(t, err)
		provider := localprovider.New()
		registry := refresh.NewMemoryRegistry()
		service := sessions.NewService(provider, issuer, registry, sessions.NewCookieCodec(sessions.CookieConfig{Secure: true}))

		_, err = server.New(cfg, service, provider, registry, server.WithDemoAccounts(sessions.DefaultDemoAccounts()))
		require.Error(t, err)
	})
}

func TestCorsPreflight(t *testing.T) {
	ts := setupServer(t, setupOptions{})

	preflight := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodOptions, server.RouteAuthLogin, nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		ts.server.ServeHTTP(w, r)
		return w
	}

	w := preflight(allowedSite)
	require.Equal(t, allowedSite, w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = preflight("https://evil.example.com")
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	registry, err := sqlrepo.Open(context.Background(), filepath.Join(t.TempDir(), "refresh.db"))
	require.NoError(t, err)
	ts := setupServer(t, setupOptions{registry: registry})

	w := ts.do(t, http.MethodGet, server.RouteHealth, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode(t, w).Data.Status)

	require.NoError(t, registry.Close())
	w = ts.do(t, http.MethodGet, server.RouteHealth, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "degraded", decode(t, w).Data.Status)
}
