package users

import (
	"time"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// User represents an admin account for management.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	RoleID      int64      `json:"roleId"`
	RoleName    string     `json:"roleName"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ListFilters narrows the user listing.
type ListFilters struct {
	shared.ListFilters
	RoleID int64
}

// Changes carries the columns an update writes; nil fields are left untouched.
type Changes struct {
	Username     *string
	Email        *string
	FullName     *string
	PasswordHash *string
	RoleID       *int64
}
