package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ks-enterprise/ks-admin/internal/observability"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

func requestWithSession(t *testing.T, identity *shared.Identity) *http.Request {
	t.Helper()
	manager := shared.NewSessionManager(nil, shared.SessionOptions{CookieName: "ks_session", Secret: "secret", TTL: time.Hour})
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	sess, err := manager.Load(req.Context(), req)
	require.NoError(t, err)
	if identity != nil {
		sess.Authenticate(*identity)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func serve(t *testing.T, mw Middleware, perm Permission, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := mw.Require(perm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, called
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Message
}

func TestRequireAnonymousIsUnauthenticated(t *testing.T) {
	rr, called := serve(t, Middleware{}, ManageUsers, requestWithSession(t, nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Authentication required", decodeMessage(t, rr))
}

func TestRequireWithoutSessionIsUnauthenticated(t *testing.T) {
	rr, called := serve(t, Middleware{}, ManageUsers, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireForbiddenRecordsMetric(t *testing.T) {
	metrics := observability.NewMetrics()
	req := requestWithSession(t, &shared.Identity{UserID: 2, RoleID: 2, Permissions: []string{"manage_products"}})

	rr, called := serve(t, Middleware{Metrics: metrics}, ManageUsers, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "You do not have permission to perform this action", decodeMessage(t, rr))

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `ksadmin_authz_decisions_total{decision="forbidden"} 1`)
}

func TestRequireAllowsGrantedPermission(t *testing.T) {
	req := requestWithSession(t, &shared.Identity{UserID: 1, RoleID: 1, Permissions: []string{"manage_users"}})
	rr, called := serve(t, Middleware{}, ManageUsers, req)
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestPermissionsHandlerListsCatalog(t *testing.T) {
	h := NewPermissionsHandler(Middleware{})
	req := requestWithSession(t, &shared.Identity{UserID: 3, RoleID: 2})
	rr := httptest.NewRecorder()
	h.listPermissions(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Success     bool             `json:"success"`
		Permissions []PermissionInfo `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Permissions, 5)
}
