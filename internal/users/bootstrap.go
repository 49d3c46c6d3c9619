package users

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// BootstrapRequest describes the administrator created by the operator CLI.
type BootstrapRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	// Reset rehashes the password and restores the super-admin role when the
	// username already exists.
	Reset bool `json:"-"`
}

// Bootstrap creates a super admin, or resets an existing one when req.Reset
// is set. The boolean reports whether a new account was created.
func (s *Service) Bootstrap(ctx context.Context, req BootstrapRequest) (*User, bool, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, false, err
	}

	var (
		user    *User
		created bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		ok, err := tx.RoleExists(ctx, rbac.SuperAdminRoleID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound("Super admin role not found; run migrations first")
		}

		id, err := tx.IDByUsername(ctx, req.Username)
		switch {
		case err == nil:
			if !req.Reset {
				return shared.Conflict("Username already exists")
			}
			h := string(hash)
			role := rbac.SuperAdminRoleID
			if err := tx.Update(ctx, id, Changes{PasswordHash: &h, RoleID: &role}); err != nil {
				return err
			}
		case errors.Is(err, shared.ErrNotFound):
			if err := checkUnique(ctx, tx, "", req.Email, 0); err != nil {
				return err
			}
			id, err = tx.Create(ctx, User{Username: req.Username, Email: req.Email, FullName: req.FullName, RoleID: rbac.SuperAdminRoleID}, string(hash))
			if err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		action := "user.bootstrap"
		if !created {
			action = "user.reset"
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"username": req.Username},
		}); err != nil {
			return err
		}
		user, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}
