package auth

import (
	"time"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
)

// User represents an admin account as seen by the login flow.
type User struct {
	ID              int64
	Username        string
	Email           string
	FullName        string
	PasswordHash    string
	RoleID          int64
	RoleName        string
	RolePermissions []string
	LastLoginAt     *time.Time
}

// Login is the outcome of a successful credential check.
type Login struct {
	User        *User
	Permissions rbac.PermissionSet
}

type userView struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"fullName,omitempty"`
	Role     roleView `json:"role"`
}

type roleView struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}
