package warranties

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
	h := NewHandler(nil, newTestService(repo), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			sess.Authenticate(shared.Identity{UserID: 3, Username: "service", RoleID: 4,
				Permissions: []string{string(rbac.ManageWarranties)}})
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/api/warranties", h.MountRoutes)
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

func TestWarrantyHandler(t *testing.T) {
	router := newTestRouter(t, newMemRepo())

	status, body := call(t, router, http.MethodPost, "/api/warranties",
		`{"productId":"KS-DRL-01","customerId":7,"purchaseDate":"2026-01-01","expirationDate":"2028-01-01"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Warranty record created successfully", body["message"])
	warranty := body["warranty"].(map[string]any)
	assert.Equal(t, "2028-01-01", warranty["expirationDate"])
	assert.Equal(t, "active", warranty["status"])

	status, body = call(t, router, http.MethodPost, "/api/warranties",
		`{"productId":"KS-DRL-01","customerId":42,"purchaseDate":"2026-01-01","expirationDate":"2028-01-01"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Customer not found", body["message"])

	status, body = call(t, router, http.MethodGet, "/api/warranties?customer_id=7&status=active", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["warranties"], 1)

	status, body = call(t, router, http.MethodGet, "/api/warranties?customer_id=x", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid customer ID", body["message"])

	status, body = call(t, router, http.MethodPut, "/api/warranties/1", `{"notes":"replaced chuck"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "replaced chuck", body["warranty"].(map[string]any)["notes"])

	status, _ = call(t, router, http.MethodDelete, "/api/warranties/1", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(t, router, http.MethodGet, "/api/warranties/1", "")
	assert.Equal(t, http.StatusNotFound, status)
}
