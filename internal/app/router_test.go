package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dealerhub/dealerhub/internal/auth"
	"github.com/dealerhub/dealerhub/internal/observability"
	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/shared"
	"github.com/dealerhub/dealerhub/internal/testing/guard"
)

type authRepo struct {
	user *auth.User
}

func (a *authRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if a.user == nil || a.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return a.user, nil
}

func (a *authRepo) CreateAccount(context.Context, auth.NewAccount) (*auth.User, error) {
	return nil, shared.ErrEmailTaken
}

func (a *authRepo) CreateSession(context.Context, string, string, time.Time, string, string) error {
	return nil
}

func (a *authRepo) DeleteSession(context.Context, string) error { return nil }

func (a *authRepo) DeleteExpiredSessions(context.Context, time.Time) (int64, error) { return 0, nil }

type stack struct {
	handler http.Handler
	metrics *observability.Metrics
	jar     []*http.Cookie
	csrf    string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "dealerhub_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")

	hash, err := bcrypt.GenerateFromPassword([]byte("dealerpass"), bcrypt.MinCost)
	require.NoError(t, err)
	authService := auth.NewService(&authRepo{user: &auth.User{
		ID: "dealer-identity", Email: "dealer@dealerhub.test", PasswordHash: string(hash), IsActive: true,
	}}, sessions, nil)

	metrics := observability.NewMetrics()
	loader := rbac.NewLoader(rbac.LoaderConfig{
		Store:    guard.Accounts{"dealer-identity": guard.Member("dealer-identity", "Dealer", "dealers.read")},
		Recorder: metrics,
		Timeout:  time.Second,
	})
	registry := rbac.NewRegistry(loader, nil, metrics)
	authService.OnSessionChange(registry.OnSessionEvent)
	g := rbac.Guard{Registry: registry, Catalog: rbac.DefaultCatalog(), Recorder: metrics, Wait: time.Second,
		SignInPath: "/auth/sign-in", FallbackPath: "/"}

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	h := NewRouter(RouterParams{
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Guard:          g,
		AuthHandler:    auth.NewHandler(nil, authService, csrf),
		AuthzHandler:   rbac.NewHandler(nil, rbac.NewService(nil, rbac.DefaultCatalog(), nil), g),
		Metrics:        metrics,
	})
	return &stack{handler: h, metrics: metrics}
}

func (s *stack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range s.jar {
		req.AddCookie(c)
	}
	if s.csrf != "" {
		req.Header.Set(shared.CSRFHeader, s.csrf)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		s.jar = cookies
	}
	return rec
}

func (s *stack) fetchToken(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	s.csrf = body.CSRFToken
}

func TestHealthz(t *testing.T) {
	s := newStack(t)
	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnauthenticatedPageRedirectsToSignIn(t *testing.T) {
	s := newStack(t)
	rec := s.do(t, http.MethodGet, "/dealers", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/sign-in?next=%2Fdealers", rec.Header().Get("Location"))
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	s := newStack(t)
	rec := s.do(t, http.MethodPost, "/auth/sign-in", `{"email":"dealer@dealerhub.test","password":"dealerpass"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSignInHydratesAuthorization(t *testing.T) {
	s := newStack(t)
	s.fetchToken(t)

	rec := s.do(t, http.MethodPost, "/auth/sign-in", `{"email":"dealer@dealerhub.test","password":"dealerpass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var signIn struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signIn))
	s.csrf = signIn.CSRFToken

	rec = s.do(t, http.MethodGet, "/api/me/authorization", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var authz struct {
		IsLoading     bool     `json:"is_loading"`
		Authenticated bool     `json:"authenticated"`
		Role          string   `json:"role"`
		Permissions   []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authz))
	assert.False(t, authz.IsLoading)
	assert.True(t, authz.Authenticated)
	assert.Equal(t, "Dealer", authz.Role)
	assert.Equal(t, []string{"dealers.read", "read"}, authz.Permissions)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/dealers", "").Code)
	denied := s.do(t, http.MethodGet, "/pricing", "")
	assert.Equal(t, http.StatusSeeOther, denied.Code)
	assert.Equal(t, "/", denied.Header().Get("Location"))

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/auth/sign-out", "").Code)
	rec = s.do(t, http.MethodGet, "/dealers", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/dealers", "")
	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dealerhub_authz_decisions_total{outcome="unauthenticated"} 1`)
}
