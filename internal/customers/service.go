package customers

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Service handles customer business logic.
type Service struct {
	repo      Repository
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: shared.NewValidator()}
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Customer, shared.Pagination, error) {
	customers, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if customers == nil {
		customers = []Customer{}
	}
	return customers, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and inserts a customer.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest, actorID int64) (*Customer, error) {
	req.trim()
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	var created *Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		taken, err := tx.EmailTaken(ctx, req.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return shared.Conflict("Customer with this email already exists")
		}
		id, err := tx.Create(ctx, Customer{
			Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address,
			City: req.City, State: req.State, PostalCode: req.PostalCode, Notes: req.Notes,
		})
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "customer.create", Entity: "customer", EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{"email": req.Email},
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

// Update applies a partial change.
func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest, actorID int64) (*Customer, error) {
	if req.Empty() {
		return nil, shared.Validation("No fields to update")
	}
	changes := req.changes()
	if err := shared.ValidateStruct(s.validator, UpdateCustomerRequest(changes)); err != nil {
		return nil, err
	}
	var updated *Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		if changes.Email != nil {
			taken, err := tx.EmailTaken(ctx, *changes.Email, id)
			if err != nil {
				return err
			}
			if taken {
				return shared.Conflict("Another customer with this email already exists")
			}
		}
		if err := tx.Update(ctx, id, changes); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "customer.update", Entity: "customer", EntityID: strconv.FormatInt(id, 10),
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

// Delete removes a customer no warranty references.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "customer.delete", Entity: "customer", EntityID: strconv.FormatInt(id, 10),
		})
	})
}
