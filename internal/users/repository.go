package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ks-enterprise/ks-admin/internal/platform/db"
	"github.com/ks-enterprise/ks-admin/internal/rbac"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Repository defines persistence for admin users.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
	Get(ctx context.Context, id int64) (*User, error)
	IDByUsername(ctx context.Context, username string) (int64, error)
	UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error)
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	LockSuperAdmins(ctx context.Context) (int, error)
	Create(ctx context.Context, user User, passwordHash string) (int64, error)
	Update(ctx context.Context, id int64, changes Changes) error
	Delete(ctx context.Context, id int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
	inTx bool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx runs fn in a SERIALIZABLE transaction; the super-admin guards count
// rows and then write.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, inTx: true})
	})
}

var sortColumns = map[string]string{
	"id":            "u.id",
	"username":      "u.username",
	"email":         "u.email",
	"full_name":     "u.full_name",
	"role_name":     "r.name",
	"last_login_at": "u.last_login_at",
	"created_at":    "u.created_at",
	"updated_at":    "u.updated_at",
}

const userColumns = `u.id, u.username, u.email, u.full_name, u.role_id, r.name, u.last_login_at, u.created_at, u.updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(u.username ILIKE $%d OR u.email ILIKE $%d OR u.full_name ILIKE $%d)", n, n, n))
	}
	if filters.RoleID > 0 {
		args = append(args, filters.RoleID)
		conditions = append(conditions, fmt.Sprintf("u.role_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	orderBy := shared.OrderBy(sortColumns, filters.SortBy, filters.SortOrder, "created_at", "DESC")

	var (
		total int
		users []User
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.inTx {
		g.SetLimit(1)
	}
	g.Go(func() error {
		return r.db.QueryRow(gctx, `SELECT COUNT(*) FROM users u `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), filters.Limit, filters.Offset())
		query := fmt.Sprintf(`SELECT %s FROM users u JOIN roles r ON r.id = u.role_id %s ORDER BY %s, u.id LIMIT $%d OFFSET $%d`,
			userColumns, where, orderBy, len(args)+1, len(args)+2)
		rows, err := r.db.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, *user)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", db.MapError(err))
	}
	return users, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("User not found")
		}
		return nil, fmt.Errorf("users: get: %w", db.MapError(err))
	}
	return user, nil
}

func (r *repository) IDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE lower(username) = lower($1)`, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFound("User not found")
		}
		return 0, fmt.Errorf("users: id by username: %w", db.MapError(err))
	}
	return id, nil
}

func (r *repository) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1) AND id <> $2)`, username, excludeID)
}

func (r *repository) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`, email, excludeID)
}

func (r *repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID)
}

// LockSuperAdmins locks every super-admin row and returns how many there are.
func (r *repository) LockSuperAdmins(ctx context.Context) (int, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users WHERE role_id = $1 FOR UPDATE`, rbac.SuperAdminRoleID)
	if err != nil {
		return 0, fmt.Errorf("users: lock super admins: %w", db.MapError(err))
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("users: lock super admins: %w", db.MapError(err))
	}
	return count, nil
}

func (r *repository) Create(ctx context.Context, user User, passwordHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO users (username, password_hash, email, full_name, role_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, user.Username, passwordHash, user.Email, user.FullName, user.RoleID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("users: create: %w", mapWriteError(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, changes Changes) error {
	sets := []string{"updated_at = NOW()"}
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.Username != nil {
		add("username", *changes.Username)
	}
	if changes.Email != nil {
		add("email", *changes.Email)
	}
	if changes.FullName != nil {
		add("full_name", *changes.FullName)
	}
	if changes.PasswordHash != nil {
		add("password_hash", *changes.PasswordHash)
	}
	if changes.RoleID != nil {
		add("role_id", *changes.RoleID)
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("users: update: %w", mapWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("User not found")
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("User not found")
	}
	return nil
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.db, log)
}

func (r *repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("users: %w", db.MapError(err))
	}
	return found, nil
}

func mapWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, "users_username_key"):
		return shared.Conflict("Username already exists")
	case db.IsUniqueViolation(err, "users_email_key"):
		return shared.Conflict("Email already exists")
	case db.IsForeignKeyViolation(err):
		return shared.NotFound("Role not found")
	}
	return db.MapError(err)
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user      User
		lastLogin pgtype.Timestamptz
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.RoleID, &user.RoleName,
		&lastLogin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

var _ Repository = (*repository)(nil)
