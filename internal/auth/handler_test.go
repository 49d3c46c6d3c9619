package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ks-enterprise/ks-admin/internal/auth"
	"github.com/ks-enterprise/ks-admin/internal/shared"
	_ "github.com/ks-enterprise/ks-admin/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Username, username) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type fixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
	repo     *stubRepo
}

func newFixture(t *testing.T, user *auth.User) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, shared.SessionOptions{CookieName: "ks_session", Secret: "secret", TTL: time.Hour})
	repo := &stubRepo{user: user, sessions: map[string]int64{}}
	handler := auth.NewHandler(nil, auth.NewService(repo, nil), sessions, shared.NewCSRFManager("csrfsecret"))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, req, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/api/auth", func(r chi.Router) { handler.MountRoutes(r, nil) })
	return &fixture{router: r, sessions: sessions, redis: mr, repo: repo}
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	return rr, decoded
}

func editor(t *testing.T) *auth.User {
	return &auth.User{
		ID: 4, Username: "jdoe", Email: "jdoe@example.com", FullName: "Jane Doe",
		PasswordHash: hashed(t, "correct-horse"), RoleID: 2, RoleName: "editor",
		RolePermissions: []string{"manage_products", "manage_customers", "retired_tag"},
	}
}

func TestLoginSuccessSnapshotsPermissions(t *testing.T) {
	f := newFixture(t, editor(t))

	rr, body := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"JDoe","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["csrfToken"])

	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.True(t, f.redis.Exists(f.sessions.StorageKey(token)))
	assert.NotContains(t, f.repo.sessions, token)
	assert.Equal(t, int64(4), f.repo.sessions[f.sessions.StorageKey(token)])
	for id := range f.repo.sessions {
		assert.NotContains(t, id, token)
	}

	user := body["user"].(map[string]any)
	role := user["role"].(map[string]any)
	assert.Equal(t, []any{"manage_customers", "manage_products"}, role["permissions"])

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "ks_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	rr, body = f.do(t, http.MethodGet, "/api/auth/me", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jdoe", body["user"].(map[string]any)["username"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, editor(t))

	for _, payload := range []string{
		`{"username":"jdoe","password":"wrong-password"}`,
		`{"username":"ghost","password":"correct-horse"}`,
	} {
		rr, body := f.do(t, http.MethodPost, "/api/auth/login", payload, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid username or password", body["message"])
	}
	assert.Empty(t, f.repo.sessions)
}

func TestLoginRejectsLegacyMD5Hash(t *testing.T) {
	user := editor(t)
	user.PasswordHash = "5f4dcc3b5aa765d61d8327deb882cf99"
	f := newFixture(t, user)

	rr, body := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"jdoe","password":"password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid username or password", body["message"])
}

func TestLoginRequiresFields(t *testing.T) {
	f := newFixture(t, editor(t))

	rr, body := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"jdoe"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Username and password are required", body["message"])

	rr, body = f.do(t, http.MethodPost, "/api/auth/login", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid JSON body", body["message"])
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t, editor(t))
	_, body := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"jdoe","password":"correct-horse"}`, "")
	token := body["token"].(string)

	rr, _ := f.do(t, http.MethodPost, "/api/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.redis.Exists(f.sessions.StorageKey(token)))
	assert.Empty(t, f.repo.sessions)

	rr, body = f.do(t, http.MethodGet, "/api/auth/me", "", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Authentication required", body["message"])
}
