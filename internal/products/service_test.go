package products

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

type memRepo struct {
	products   map[string]*Product
	referenced map[string]bool
	audit      []shared.AuditLog
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[string]*Product{}, referenced: map[string]bool{}}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) List(ctx context.Context, f ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range m.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memRepo) Get(ctx context.Context, id string) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, shared.NotFound("Product not found")
	}
	cp := *p
	normalize(&cp)
	return &cp, nil
}

func (m *memRepo) Create(ctx context.Context, p Product) error {
	if _, ok := m.products[p.ID]; ok {
		return shared.Conflict("Product with this ID already exists")
	}
	m.products[p.ID] = &p
	return nil
}

func (m *memRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	p, ok := m.products[id]
	if !ok {
		return shared.NotFound("Product not found")
	}
	for k, v := range fields {
		switch k {
		case "name":
			p.Name = v.(string)
		case "price":
			p.Price = v.(float64)
		case "inStock":
			p.InStock = v.(bool)
		case "features":
			if err := json.Unmarshal(v.([]byte), &p.Features); err != nil {
				return err
			}
		case "specifications":
			if err := json.Unmarshal(v.([]byte), &p.Specifications); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.products[id]; !ok {
		return shared.NotFound("Product not found")
	}
	if m.referenced[id] {
		return shared.Conflict("Cannot delete product as it has warranty records")
	}
	delete(m.products, id)
	return nil
}

func (m *memRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	m.audit = append(m.audit, log)
	return nil
}

func drill() CreateProductRequest {
	return CreateProductRequest{ID: "KS-DRL-01", Name: "Cordless Drill", Price: 129.5, Category: "tools", Subcategory: "power"}
}

func TestCreateProduct(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	p, err := svc.Create(context.Background(), drill(), 1)
	require.NoError(t, err)
	assert.True(t, p.InStock)
	assert.Equal(t, []string{}, p.Images)
	assert.Equal(t, map[string]any{}, p.Specifications)

	_, err = svc.Create(context.Background(), drill(), 1)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "Product with this ID already exists", shared.UserSafeMessage(err))
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemRepo())
	cases := map[string]struct {
		mutate  func(*CreateProductRequest)
		message string
	}{
		"missing id":          {func(r *CreateProductRequest) { r.ID = "" }, "Field 'id' is required"},
		"missing price":       {func(r *CreateProductRequest) { r.Price = 0 }, "Field 'price' is required"},
		"negative price":      {func(r *CreateProductRequest) { r.Price = -3 }, "Field 'price' must be greater than 0"},
		"missing subcategory": {func(r *CreateProductRequest) { r.Subcategory = "  " }, "Field 'subcategory' is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := drill()
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req, 1)
			require.ErrorIs(t, err, shared.ErrValidation)
			assert.Equal(t, tc.message, shared.UserSafeMessage(err))
		})
	}
}

func TestUpdateProduct(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	_, err := svc.Create(ctx, drill(), 1)
	require.NoError(t, err)

	_, err = svc.Update(ctx, "KS-DRL-01", UpdateProductRequest{}, 1)
	assert.Equal(t, "No fields to update", shared.UserSafeMessage(err))

	price := 99.0
	features := []string{"brushless", "2 batteries"}
	specs := map[string]any{"voltage": "18V"}
	p, err := svc.Update(ctx, "KS-DRL-01", UpdateProductRequest{Price: &price, Features: &features, Specifications: &specs}, 1)
	require.NoError(t, err)
	assert.Equal(t, 99.0, p.Price)
	assert.Equal(t, features, p.Features)
	assert.Equal(t, "18V", p.Specifications["voltage"])

	_, err = svc.Update(ctx, "nope", UpdateProductRequest{Price: &price}, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteProductReferencedByWarranty(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()
	_, err := svc.Create(ctx, drill(), 1)
	require.NoError(t, err)
	repo.referenced["KS-DRL-01"] = true

	err = svc.Delete(ctx, "KS-DRL-01", 1)
	require.ErrorIs(t, err, shared.ErrConflict)

	repo.referenced["KS-DRL-01"] = false
	require.NoError(t, svc.Delete(ctx, "KS-DRL-01", 1))
	require.ErrorIs(t, svc.Delete(ctx, "KS-DRL-01", 1), shared.ErrNotFound)
}
