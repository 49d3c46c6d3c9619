package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
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

	"github.com/ks-enterprise/ks-admin/internal/auth"
	"github.com/ks-enterprise/ks-admin/internal/observability"
	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

type stubAuthRepo struct {
	user *auth.User
}

func (s stubAuthRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if !strings.EqualFold(s.user.Username, username) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (stubAuthRepo) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return nil
}

func (stubAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (stubAuthRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := stubAuthRepo{user: &auth.User{
		ID: 1, Username: "admin", PasswordHash: string(hash), RoleID: rbac.SuperAdminRoleID,
		RoleName: "super_admin", RolePermissions: []string{"manage_users", "manage_roles"},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", LoginRateLimit: 3, APIRateLimit: 1000, AppRequestTimeout: 5 * time.Second}
	sessions := shared.NewSessionManager(client, shared.SessionOptions{CookieName: "ks_session", Secret: "secret", TTL: time.Hour})
	csrf := shared.NewCSRFManager("csrf-secret")
	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger, Metrics: metrics}

	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(repo, logger), sessions, csrf),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		Metrics:            metrics,
	})
}

type response struct {
	code    int
	body    map[string]any
	cookies []*http.Cookie
}

func send(t *testing.T, h http.Handler, req *http.Request) response {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return response{code: rr.Code, body: body, cookies: rr.Result().Cookies()}
}

func login(t *testing.T, h http.Handler) (token, csrfToken string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"s3cret-pass"}`))
	res := send(t, h, req)
	require.Equal(t, http.StatusOK, res.code)
	return res.body["token"].(string), res.body["csrfToken"].(string)
}

func TestHealthAndNotFound(t *testing.T) {
	router := newTestRouter(t)

	res := send(t, router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "ok", res.body["status"])

	res = send(t, router, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, false, res.body["success"])
}

func TestPermissionsRequireLogin(t *testing.T) {
	router := newTestRouter(t)

	res := send(t, router, httptest.NewRequest(http.MethodGet, "/api/permissions", nil))
	assert.Equal(t, http.StatusUnauthorized, res.code)

	token, _ := login(t, router)
	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = send(t, router, req)
	require.Equal(t, http.StatusOK, res.code)
	assert.Len(t, res.body["permissions"], 5)
}

func TestCookieMutationsRequireCSRFToken(t *testing.T) {
	router := newTestRouter(t)
	token, csrfToken := login(t, router)
	cookie := &http.Cookie{Name: "ks_session", Value: token}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	res := send(t, router, req)
	assert.Equal(t, http.StatusForbidden, res.code)
	assert.Equal(t, "Invalid CSRF token", res.body["message"])

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, "forged")
	res = send(t, router, req)
	assert.Equal(t, http.StatusForbidden, res.code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, csrfToken)
	res = send(t, router, req)
	assert.Equal(t, http.StatusOK, res.code)
}

func TestBearerMutationsSkipCSRF(t *testing.T) {
	router := newTestRouter(t)
	token, _ := login(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := send(t, router, req)
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "Logout successful", res.body["message"])
}

func TestLoginRateLimit(t *testing.T) {
	router := newTestRouter(t)
	var last response
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"wrong-pass"}`))
		req.RemoteAddr = "203.0.113.7:5000"
		last = send(t, router, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.code)
	assert.Equal(t, "Too many login attempts, please try again later", last.body["message"])
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}
