package products

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Service handles product business logic.
type Service struct {
	repo      Repository
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: shared.NewValidator()}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if products == nil {
		products = []Product{}
	}
	return products, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a product under the caller-supplied id.
func (s *Service) Create(ctx context.Context, req CreateProductRequest, actorID int64) (*Product, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Subcategory = strings.TrimSpace(req.Subcategory)
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	p := Product{
		ID:             req.ID,
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		Images:         req.Images,
		Category:       req.Category,
		Subcategory:    req.Subcategory,
		Features:       req.Features,
		Specifications: req.Specifications,
		InStock:        req.InStock == nil || *req.InStock,
	}
	var created *Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Create(ctx, p); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "product.create", Entity: "product", EntityID: p.ID,
			Meta: map[string]any{"name": p.Name, "price": p.Price},
		}); err != nil {
			return err
		}
		var err error
		created, err = tx.Get(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies a partial change.
func (s *Service) Update(ctx context.Context, id string, req UpdateProductRequest, actorID int64) (*Product, error) {
	if req.Empty() {
		return nil, shared.Validation("No fields to update")
	}
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	fields, err := updateFields(req)
	if err != nil {
		return nil, err
	}
	var updated *Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Update(ctx, id, fields); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "product.update", Entity: "product", EntityID: id,
			Meta: map[string]any{"fields": sortedKeys(fields)},
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
	return updated, nil
}

// Delete removes a product no warranty references.
func (s *Service) Delete(ctx context.Context, id string, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "product.delete", Entity: "product", EntityID: id,
		})
	})
}

func updateFields(req UpdateProductRequest) (map[string]any, error) {
	fields := make(map[string]any)
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Price != nil {
		fields["price"] = *req.Price
	}
	if req.Category != nil {
		fields["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Subcategory != nil {
		fields["subcategory"] = strings.TrimSpace(*req.Subcategory)
	}
	if req.InStock != nil {
		fields["inStock"] = *req.InStock
	}
	for key, value := range map[string]any{"images": req.Images, "features": req.Features, "specifications": req.Specifications} {
		encoded, ok, err := encodeOptional(value)
		if err != nil {
			return nil, err
		}
		if ok {
			fields[key] = encoded
		}
	}
	return fields, nil
}

func encodeOptional(v any) ([]byte, bool, error) {
	var payload any
	switch t := v.(type) {
	case *[]string:
		if t == nil {
			return nil, false, nil
		}
		list := *t
		if list == nil {
			list = []string{}
		}
		payload = list
	case *map[string]any:
		if t == nil {
			return nil, false, nil
		}
		m := *t
		if m == nil {
			m = map[string]any{}
		}
		payload = m
	default:
		return nil, false, nil
	}
	b, err := json.Marshal(payload)
	return b, err == nil, err
}

func normalize(p *Product) {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	if p.Specifications == nil {
		p.Specifications = map[string]any{}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
