package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Service handles role business logic.
type Service struct {
	repo      Repository
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, validator: shared.NewValidator()}
}

// List returns a page of roles with their user counts.
func (s *Service) List(ctx context.Context, filters RoleListFilters) ([]Role, shared.Pagination, error) {
	roles, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one role.
func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	return s.repo.Get(ctx, id)
}

// Create validates the permission tags against the catalog and inserts the role.
func (s *Service) Create(ctx context.Context, req CreateRoleRequest, actorID int64) (*Role, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	var created *Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		taken, err := tx.NameTaken(ctx, req.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return shared.Conflict("Role with this name already exists")
		}
		id, err := tx.Create(ctx, Role{Name: req.Name, Description: req.Description, Permissions: perms.Strings()})
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "role.create",
			Entity:   "role",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"name": req.Name, "permissions": perms.Strings()},
		}); err != nil {
			return err
		}
		created, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies a partial change. Sessions already issued keep their
// permission snapshot until the user logs in again.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRoleRequest, actorID int64) (*Role, error) {
	if req.Empty() {
		return nil, shared.Validation("No fields to update")
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	changes := Changes{Name: req.Name, Description: req.Description}
	var perms rbac.PermissionSet
	if req.Permissions != nil {
		var err error
		if perms, err = parsePermissions(*req.Permissions); err != nil {
			return nil, err
		}
		changes.Permissions = perms.Strings()
	}

	var updated *Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		if req.Name != nil {
			taken, err := tx.NameTaken(ctx, *req.Name, id)
			if err != nil {
				return err
			}
			if taken {
				return shared.Conflict("Another role with this name already exists")
			}
		}
		if perms != nil {
			if err := rbac.CanSetRolePermissions(id, perms); err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, id, changes); err != nil {
			return err
		}
		meta := map[string]any{}
		if req.Name != nil {
			meta["name"] = *req.Name
		}
		if perms != nil {
			meta["permissions"] = perms.Strings()
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "role.update",
			Entity:   "role",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     meta,
		}); err != nil {
			return err
		}
		var err error
		updated, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if perms != nil {
		s.logger.Info("role permissions changed; active sessions keep their snapshot until re-login",
			slog.Int64("role_id", id), slog.Int("user_count", updated.UserCount))
	}
	return updated, nil
}

// Delete removes a role no user references. The guard and the delete share
// one transaction with the role row locked.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		assigned, err := tx.LockForDelete(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.CanDeleteRole(id, assigned); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "role.delete",
			Entity:   "role",
			EntityID: strconv.FormatInt(id, 10),
		})
	})
}

func parsePermissions(raw []string) (rbac.PermissionSet, error) {
	if len(raw) == 0 {
		return nil, shared.Validation("Field 'permissions' must contain at least one permission")
	}
	return rbac.ParsePermissions(raw)
}
