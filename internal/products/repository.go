package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ks-enterprise/ks-admin/internal/platform/db"
	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Repository defines persistence for products.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p Product) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
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
	"id":          "id",
	"name":        "name",
	"price":       "price",
	"category":    "category",
	"subcategory": "subcategory",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
}

// updatable maps accepted update keys onto columns.
var updatable = map[string]string{
	"name":           "name",
	"description":    "description",
	"price":          "price",
	"images":         "images",
	"category":       "category",
	"subcategory":    "subcategory",
	"features":       "features",
	"specifications": "specifications",
	"inStock":        "in_stock",
}

const productColumns = `id, name, description, price, images, category, subcategory, features, specifications, in_stock, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filters.Category != "" {
		args = append(args, filters.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filters.Subcategory != "" {
		args = append(args, filters.Subcategory)
		conditions = append(conditions, fmt.Sprintf("subcategory = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	orderBy := shared.OrderBy(sortColumns, filters.SortBy, filters.SortOrder, "updated_at", "DESC")

	var (
		total    int
		products []Product
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.inTx {
		g.SetLimit(1)
	}
	g.Go(func() error {
		return r.db.QueryRow(gctx, `SELECT COUNT(*) FROM products `+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), filters.Limit, filters.Offset())
		query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY %s, id LIMIT $%d OFFSET $%d`,
			productColumns, where, orderBy, len(args)+1, len(args)+2)
		rows, err := r.db.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			products = append(products, *p)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("products: list: %w", db.MapError(err))
	}
	return products, total, nil
}

func (r *repository) Get(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.NotFound("Product not found")
		}
		return nil, fmt.Errorf("products: get: %w", db.MapError(err))
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, p Product) error {
	images, features, specs, err := encodeJSON(p.Images, p.Features, p.Specifications)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO products (id, name, description, price, images, category, subcategory, features, specifications, in_stock)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Description, p.Price, images, p.Category, p.Subcategory, features, specs, p.InStock)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return shared.Conflict("Product with this ID already exists")
		}
		return fmt.Errorf("products: create: %w", db.MapError(err))
	}
	return nil
}

// Update writes the given fields. JSON-typed values must already be encoded.
func (r *repository) Update(ctx context.Context, id string, fields map[string]any) error {
	sets := []string{"updated_at = NOW()"}
	var args []any
	for _, key := range sortedKeys(fields) {
		column, ok := updatable[key]
		if !ok {
			return fmt.Errorf("products: update: unknown field %q", key)
		}
		args = append(args, fields[key])
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, id)
	tag, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE products SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("products: update: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Product not found")
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.Conflict("Cannot delete product as it has warranty records")
		}
		return fmt.Errorf("products: delete: %w", db.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("Product not found")
	}
	return nil
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.db, log)
}

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p                       Product
		price                   pgtype.Numeric
		images, features, specs []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &images, &p.Category, &p.Subcategory,
		&features, &specs, &p.InStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if price.Valid {
		f, err := price.Float64Value()
		if err != nil {
			return nil, err
		}
		p.Price = f.Float64
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := json.Unmarshal(specs, &p.Specifications); err != nil {
		return nil, fmt.Errorf("decode specifications: %w", err)
	}
	normalize(&p)
	return &p, nil
}

func encodeJSON(images, features []string, specs map[string]any) ([]byte, []byte, []byte, error) {
	if images == nil {
		images = []string{}
	}
	if features == nil {
		features = []string{}
	}
	if specs == nil {
		specs = map[string]any{}
	}
	i, err := json.Marshal(images)
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := json.Marshal(features)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := json.Marshal(specs)
	if err != nil {
		return nil, nil, nil, err
	}
	return i, f, s, nil
}

var _ Repository = (*repository)(nil)
