package roles

import (
	"time"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Role groups permissions assigned to users.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	UserCount   int       `json:"userCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RoleListFilters narrows the role listing.
type RoleListFilters struct {
	shared.ListFilters
}

// Changes carries the columns an update writes; nil fields are left untouched.
type Changes struct {
	Name        *string
	Description *string
	Permissions []string
}

// CreateRoleRequest is the payload for POST /api/roles.
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"required"`
}

// UpdateRoleRequest is the partial payload for PUT /api/roles/{id}.
type UpdateRoleRequest struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions *[]string `json:"permissions,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r UpdateRoleRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Permissions == nil
}
