package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Notifier delivers account notifications out of band.
type Notifier interface {
	EnqueueWelcome(ctx context.Context, email, fullName, username string) error
}

// Service handles user business logic.
type Service struct {
	repo      Repository
	notifier  Notifier
	logger    *slog.Logger
	validator *validator.Validate
	hashCost  int
}

// NewService builds Service instance. notifier may be nil.
func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		notifier:  notifier,
		logger:    logger,
		validator: shared.NewValidator(),
		hashCost:  bcrypt.DefaultCost,
	}
}

// List returns a page of users with pagination metadata.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, shared.Pagination, error) {
	users, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if users == nil {
		users = []User{}
	}
	return users, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and inserts a user, then queues a welcome mail.
func (s *Service) Create(ctx context.Context, req CreateUserRequest, actorID int64) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, err
	}

	var created *User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkUnique(ctx, tx, req.Username, req.Email, 0); err != nil {
			return err
		}
		if err := checkRole(ctx, tx, req.RoleID); err != nil {
			return err
		}
		id, err := tx.Create(ctx, User{Username: req.Username, Email: req.Email, FullName: req.FullName, RoleID: req.RoleID}, string(hash))
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "user.create",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"username": req.Username, "role_id": req.RoleID},
		}); err != nil {
			return err
		}
		created, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.EnqueueWelcome(ctx, created.Email, created.FullName, created.Username); err != nil {
			s.logger.Warn("enqueue welcome mail", slog.Int64("user_id", created.ID), slog.Any("error", err))
		}
	}
	return created, nil
}

// Update applies a partial change. Moving the last super admin to another
// role is refused.
func (s *Service) Update(ctx context.Context, id int64, req UpdateUserRequest, actorID int64) (*User, error) {
	if req.Empty() {
		return nil, shared.Validation("No fields to update")
	}
	trim(req.Username)
	trim(req.Email)
	trim(req.FullName)
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	changes := Changes{Username: req.Username, Email: req.Email, FullName: req.FullName, RoleID: req.RoleID}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.hashCost)
		if err != nil {
			return nil, err
		}
		h := string(hash)
		changes.PasswordHash = &h
	}

	var updated *User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		username, email := "", ""
		if req.Username != nil {
			username = *req.Username
		}
		if req.Email != nil {
			email = *req.Email
		}
		if err := checkUnique(ctx, tx, username, email, id); err != nil {
			return err
		}
		if req.RoleID != nil && *req.RoleID != current.RoleID {
			if err := checkRole(ctx, tx, *req.RoleID); err != nil {
				return err
			}
			if current.RoleID == rbac.SuperAdminRoleID {
				count, err := tx.LockSuperAdmins(ctx)
				if err != nil {
					return err
				}
				if err := rbac.CanChangeUserRole(current.RoleID, *req.RoleID, count); err != nil {
					return err
				}
			}
		}
		if err := tx.Update(ctx, id, changes); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "user.update",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"fields": changedFields(req)},
		}); err != nil {
			return err
		}
		updated, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a user after the deletion guard passes. The guard and the
// delete share one serializable transaction with the super-admin rows locked.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		target, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.LockSuperAdmins(ctx)
		if err != nil {
			return err
		}
		if err := rbac.CanDeleteUser(rbac.UserDeletion{
			TargetUserID:    target.ID,
			ActingUserID:    actorID,
			TargetRoleID:    target.RoleID,
			SuperAdminCount: count,
		}); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "user.delete",
			Entity:   "user",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"username": target.Username},
		})
	})
}

func checkUnique(ctx context.Context, tx Repository, username, email string, excludeID int64) error {
	if username != "" {
		taken, err := tx.UsernameTaken(ctx, username, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return shared.Conflict("Username already exists")
		}
	}
	if email != "" {
		taken, err := tx.EmailTaken(ctx, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return shared.Conflict("Email already exists")
		}
	}
	return nil
}

func checkRole(ctx context.Context, tx Repository, roleID int64) error {
	ok, err := tx.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFound("Role not found")
	}
	return nil
}

func changedFields(req UpdateUserRequest) []string {
	var fields []string
	if req.Username != nil {
		fields = append(fields, "username")
	}
	if req.Email != nil {
		fields = append(fields, "email")
	}
	if req.FullName != nil {
		fields = append(fields, "fullName")
	}
	if req.Password != nil {
		fields = append(fields, "password")
	}
	if req.RoleID != nil {
		fields = append(fields, "roleId")
	}
	return fields
}

func trim(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

