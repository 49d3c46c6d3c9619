package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ks-enterprise/ks-admin/internal/platform/db"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Repository defines persistence for roles.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, filters RoleListFilters) ([]Role, int, error)
	Get(ctx context.Context, id int64) (*Role, error)
	LockForDelete(ctx context.Context, id int64) (assignedUsers int, err error)
	NameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, role Role) (int64, error)
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

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, inTx: true})
	})
}

var sortColumns = map[string]string{
	"id":         "r.id",
	"name":       "r.name",
	"user_count": "user_count",
	"created_at": "r.created_at",
	"updated_at": "r.updated_at",
}

const roleSelect = `
SELECT r.id, r.name, r.description, r.permissions, r.created_at, r.updated_at,
       (SELECT COUNT(*) FROM users u WHERE u.role_id = r.id) AS user_count
FROM roles r`

func (r *repository) List(ctx context.Context, filters RoleListFilters) ([]Role, int, error) {
	where := ""
	var args []any
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = "WHERE (r.name ILIKE $1 OR r.description ILIKE $1)"
	}
	orderBy := shared.OrderBy(sortColumns, filters.SortBy, filters.SortOrder, "name", "ASC")

	var (
		total int
		roles []Role
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.inTx {
		g.SetLimit(1)
	}
	g.Go(func() error {
		return r.db.QueryRow(gctx, `SELECT COUNT(*) FROM roles r `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), filters.Limit, filters.Offset())
		query := fmt.Sprintf(`%s %s ORDER BY %s, r.id LIMIT $%d OFFSET $%d`, roleSelect, where, orderBy, len(args)+1, len(args)+2)
		rows, err := r.db.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			role, err := scanRole(rows)
			if err != nil {
				return err
			}
			roles = append(roles, *role)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("roles: list: %w", db.MapError(err))
	}
	return roles, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, roleSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("Role not found")
		}
		return nil, fmt.Errorf("roles: get: %w", db.MapError(err))
	}
	return role, nil
}

// LockForDelete locks the role row, then counts the users referencing it.
func (r *repository) LockForDelete(ctx context.Context, id int64) (int, error) {
	var locked int64
	if err := r.db.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFound("Role not found")
		}
		return 0, fmt.Errorf("roles: lock: %w", db.MapError(err))
	}
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("roles: count users: %w", db.MapError(err))
	}
	return count, nil
}

func (r *repository) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE lower(name) = lower($1) AND id <> $2)`, name, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("roles: name check: %w", db.MapError(err))
	}
	return taken, nil
}

func (r *repository) Create(ctx context.Context, role Role) (int64, error) {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO roles (name, description, permissions) VALUES ($1, $2, $3) RETURNING id`,
		role.Name, role.Description, perms).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "roles_name_key") {
			return 0, shared.Conflict("Role with this name already exists")
		}
		return 0, fmt.Errorf("roles: create: %w", db.MapError(err))
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
	if changes.Name != nil {
		add("name", *changes.Name)
	}
	if changes.Description != nil {
		add("description", *changes.Description)
	}
	if changes.Permissions != nil {
		perms, err := json.Marshal(changes.Permissions)
		if err != nil {
			return err
		}
		add("permissions", perms)
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE roles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		if db.IsUniqueViolation(err, "roles_name_key") {
			return shared.Conflict("Another role with this name already exists")
		}
		return fmt.Errorf("roles: update: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Role not found")
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("Cannot delete role as it is assigned to users")
		}
		return fmt.Errorf("roles: delete: %w", db.MapError(err))
	}
	return nil
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.db, log)
}

func scanRole(row pgx.Row) (*Role, error) {
	var (
		role     Role
		permsRaw []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &permsRaw, &role.CreatedAt, &role.UpdatedAt, &role.UserCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permsRaw, &role.Permissions); err != nil {
		return nil, fmt.Errorf("roles: decode permissions of role %d: %w", role.ID, err)
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return &role, nil
}

var _ Repository = (*repository)(nil)
