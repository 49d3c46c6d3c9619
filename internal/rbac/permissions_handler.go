package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ks-enterprise/ks-admin/internal/platform/httpx"
)

// PermissionsHandler lists the permission catalog.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/", h.listPermissions)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.Success(w, http.StatusOK, "", map[string]any{"permissions": Catalog})
}
