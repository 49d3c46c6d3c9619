package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ks-admin-unknown-user"), bcrypt.DefaultCost)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Authenticate validates username/password credentials and snapshots the
// permissions of the user's role.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Login, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !isBcryptHash(user.PasswordHash) {
		s.logger.Warn("login refused for legacy password hash; reset the password",
			slog.Int64("user_id", user.ID))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	perms, dropped := rbac.KnownPermissions(user.RolePermissions)
	if len(dropped) > 0 {
		s.logger.Warn("role carries unknown permissions",
			slog.Int64("role_id", user.RoleID),
			slog.Any("dropped", dropped))
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("touch last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return &Login{User: user, Permissions: perms}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func isBcryptHash(hash string) bool {
	if len(hash) != 60 {
		return false
	}
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}
