package customers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

func newTestRouter(t *testing.T, repo *memRepo) http.Handler {
	t.Helper()
	sessions := shared.NewSessionManager(nil, shared.SessionOptions{CookieName: "ks_session", Secret: "secret", TTL: time.Hour})
	h := NewHandler(nil, NewService(repo), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			sess.Authenticate(shared.Identity{UserID: 2, Username: "support", RoleID: 2,
				Permissions: []string{string(rbac.ManageCustomers)}})
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/customers", h.MountRoutes)
	return r
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	return rr.Code, decoded
}

func TestCustomerHandler(t *testing.T) {
	repo := newMemRepo()
	router := newTestRouter(t, repo)

	status, body := call(t, router, http.MethodPost, "/api/customers",
		`{"name":"Jane Doe","email":"jane@example.com","phone":"555-0100","postalCode":"73301"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Customer created successfully", body["message"])
	assert.Equal(t, "73301", body["customer"].(map[string]any)["postalCode"])

	status, body = call(t, router, http.MethodPost, "/api/customers",
		`{"name":"Jane Again","email":"jane@example.com","phone":"555-0101"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = call(t, router, http.MethodGet, "/api/customers?search=Jane", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["customers"], 1)

	status, body = call(t, router, http.MethodGet, "/api/customers/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid customer ID", body["message"])

	status, _ = call(t, router, http.MethodDelete, "/api/customers/1", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(t, router, http.MethodDelete, "/api/customers/1", "")
	assert.Equal(t, http.StatusNotFound, status)
}
