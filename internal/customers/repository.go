package customers

import (
	"context"
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

// Repository defines persistence for customers.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (*Customer, error)
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, c Customer) (int64, error)
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
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, inTx: true})
	})
}

var sortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"email":      "email",
	"phone":      "phone",
	"city":       "city",
	"state":      "state",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

const customerColumns = `id, name, email, phone, address, city, state, postal_code, notes, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	var (
		where string
		args  []any
	)
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = "WHERE (name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1)"
	}
	orderBy := shared.OrderBy(sortColumns, filters.SortBy, filters.SortOrder, "name", "ASC")

	var (
		total     int
		customers []Customer
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.inTx {
		g.SetLimit(1)
	}
	g.Go(func() error {
		return r.db.QueryRow(gctx, `SELECT COUNT(*) FROM customers `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), filters.Limit, filters.Offset())
		query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY %s, id LIMIT $%d OFFSET $%d`,
			customerColumns, where, orderBy, len(args)+1, len(args)+2)
		rows, err := r.db.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCustomer(rows)
			if err != nil {
				return err
			}
			customers = append(customers, *c)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", db.MapError(err))
	}
	return customers, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("Customer not found")
		}
		return nil, fmt.Errorf("customers: get: %w", db.MapError(err))
	}
	return c, nil
}

func (r *repository) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE lower(email) = lower($1) AND id <> $2)`,
		email, excludeID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("customers: email lookup: %w", db.MapError(err))
	}
	return found, nil
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO customers (name, email, phone, address, city, state, postal_code, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, c.Name, c.Email, c.Phone, c.Address, c.City, c.State, c.PostalCode, c.Notes).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "customers_email_key") {
			return 0, shared.Conflict("Customer with this email already exists")
		}
		return 0, fmt.Errorf("customers: create: %w", db.MapError(err))
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, changes Changes) error {
	sets := []string{"updated_at = NOW()"}
	var args []any
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("name", changes.Name)
	add("email", changes.Email)
	add("phone", changes.Phone)
	add("address", changes.Address)
	add("city", changes.City)
	add("state", changes.State)
	add("postal_code", changes.PostalCode)
	add("notes", changes.Notes)
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE customers SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		if db.IsUniqueViolation(err, "customers_email_key") {
			return shared.Conflict("Another customer with this email already exists")
		}
		return fmt.Errorf("customers: update: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Customer not found")
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("Cannot delete customer as they have warranty records")
		}
		return fmt.Errorf("customers: delete: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Customer not found")
	}
	return nil
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.db, log)
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.City, &c.State,
		&c.PostalCode, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

var _ Repository = (*repository)(nil)
