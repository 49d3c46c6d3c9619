package warranties

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

// Repository defines persistence for warranties.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, filters ListFilters) ([]Warranty, int, error)
	Get(ctx context.Context, id int64) (*Warranty, error)
	ProductExists(ctx context.Context, id string) (bool, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	Create(ctx context.Context, w Warranty) (int64, error)
	Update(ctx context.Context, id int64, changes Changes) error
	Delete(ctx context.Context, id int64) error
	ExpiringBetween(ctx context.Context, from, to Date) ([]Warranty, error)
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
	"id":              "w.id",
	"purchase_date":   "w.purchase_date",
	"expiration_date": "w.expiration_date",
	"product_name":    "p.name",
	"customer_name":   "c.name",
	"created_at":      "w.created_at",
}

const (
	warrantyColumns = `w.id, w.product_id, w.customer_id, w.serial_number, w.purchase_date, w.expiration_date, w.notes,
	p.name, p.category, p.subcategory, c.name, c.email, c.phone, w.created_at, w.updated_at`
	warrantyJoins = `FROM warranties w
JOIN products p ON p.id = w.product_id
JOIN customers c ON c.id = w.customer_id`
)

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Warranty, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filters.ProductID != "" {
		args = append(args, filters.ProductID)
		conditions = append(conditions, fmt.Sprintf("w.product_id = $%d", len(args)))
	}
	if filters.CustomerID > 0 {
		args = append(args, filters.CustomerID)
		conditions = append(conditions, fmt.Sprintf("w.customer_id = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(p.name ILIKE $%d OR c.name ILIKE $%d OR w.serial_number ILIKE $%d)", n, n, n))
	}
	switch filters.Status {
	case StatusActive:
		args = append(args, filters.Today.Time)
		conditions = append(conditions, fmt.Sprintf("w.expiration_date >= $%d", len(args)))
	case StatusExpired:
		args = append(args, filters.Today.Time)
		conditions = append(conditions, fmt.Sprintf("w.expiration_date < $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	orderBy := shared.OrderBy(sortColumns, filters.SortBy, filters.SortOrder, "expiration_date", "DESC")

	var (
		total      int
		warranties []Warranty
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.inTx {
		g.SetLimit(1)
	}
	g.Go(func() error {
		return r.db.QueryRow(gctx, `SELECT COUNT(*) `+warrantyJoins+` `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), filters.Limit, filters.Offset())
		query := fmt.Sprintf(`SELECT %s %s %s ORDER BY %s, w.id LIMIT $%d OFFSET $%d`,
			warrantyColumns, warrantyJoins, where, orderBy, len(args)+1, len(args)+2)
		var err error
		warranties, err = r.query(gctx, query, pageArgs...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("warranties: list: %w", db.MapError(err))
	}
	return warranties, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Warranty, error) {
	w, err := scanWarranty(r.db.QueryRow(ctx, `SELECT `+warrantyColumns+` `+warrantyJoins+` WHERE w.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("Warranty not found")
		}
		return nil, fmt.Errorf("warranties: get: %w", db.MapError(err))
	}
	return w, nil
}

func (r *repository) ProductExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id)
}

func (r *repository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id)
}

func (r *repository) Create(ctx context.Context, w Warranty) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO warranties (product_id, customer_id, serial_number, purchase_date, expiration_date, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, w.ProductID, w.CustomerID, w.SerialNumber, w.PurchaseDate.Time, w.ExpirationDate.Time, w.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("warranties: create: %w", mapWriteError(err))
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
	if changes.ProductID != nil {
		add("product_id", *changes.ProductID)
	}
	if changes.CustomerID != nil {
		add("customer_id", *changes.CustomerID)
	}
	if changes.SerialNumber != nil {
		add("serial_number", *changes.SerialNumber)
	}
	if changes.PurchaseDate != nil {
		add("purchase_date", changes.PurchaseDate.Time)
	}
	if changes.ExpirationDate != nil {
		add("expiration_date", changes.ExpirationDate.Time)
	}
	if changes.Notes != nil {
		add("notes", *changes.Notes)
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE warranties SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("warranties: update: %w", mapWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Warranty not found")
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM warranties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("warranties: delete: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Warranty not found")
	}
	return nil
}

// ExpiringBetween returns warranties whose expiration date falls in [from, to].
func (r *repository) ExpiringBetween(ctx context.Context, from, to Date) ([]Warranty, error) {
	list, err := r.query(ctx, `SELECT `+warrantyColumns+` `+warrantyJoins+`
WHERE w.expiration_date BETWEEN $1 AND $2
ORDER BY w.expiration_date, w.id`, from.Time, to.Time)
	if err != nil {
		return nil, fmt.Errorf("warranties: expiring: %w", db.MapError(err))
	}
	return list, nil
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.db, log)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Warranty, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Warranty
	for rows.Next() {
		w, err := scanWarranty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("warranties: %w", db.MapError(err))
	}
	return found, nil
}

// mapWriteError covers races the existence checks cannot rule out.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23503" && strings.Contains(pgErr.ConstraintName, "product"):
			return shared.NotFound("Product not found")
		case pgErr.Code == "23503" && strings.Contains(pgErr.ConstraintName, "customer"):
			return shared.NotFound("Customer not found")
		case pgErr.ConstraintName == "warranties_dates_check":
			return shared.Validation("Expiration date cannot be before purchase date")
		}
	}
	return db.MapError(err)
}

func scanWarranty(row pgx.Row) (*Warranty, error) {
	var w Warranty
	if err := row.Scan(&w.ID, &w.ProductID, &w.CustomerID, &w.SerialNumber, &w.PurchaseDate.Time, &w.ExpirationDate.Time,
		&w.Notes, &w.ProductName, &w.Category, &w.Subcategory, &w.CustomerName, &w.CustomerEmail, &w.CustomerPhone,
		&w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.PurchaseDate = NewDate(w.PurchaseDate.Time)
	w.ExpirationDate = NewDate(w.ExpirationDate.Time)
	return &w, nil
}

var _ Repository = (*repository)(nil)
