package warranties

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Service handles warranty business logic.
type Service struct {
	repo      Repository
	validator *validator.Validate
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: shared.NewValidator(), now: time.Now}
}

func (s *Service) today() Date {
	return NewDate(s.now())
}

// List returns a page of warranties with computed status.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Warranty, shared.Pagination, error) {
	today := s.today()
	filters.Today = today
	list, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if list == nil {
		list = []Warranty{}
	}
	for i := range list {
		list[i].Status = list[i].StatusOn(today)
	}
	return list, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// Get returns one warranty with computed status.
func (s *Service) Get(ctx context.Context, id int64) (*Warranty, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Status = w.StatusOn(s.today())
	return w, nil
}

// Create validates references and dates, then inserts the warranty.
func (s *Service) Create(ctx context.Context, req CreateWarrantyRequest, actorID int64) (*Warranty, error) {
	req.trim()
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	purchase, err := ParseDate("purchaseDate", req.PurchaseDate)
	if err != nil {
		return nil, err
	}
	expiration, err := ParseDate("expirationDate", req.ExpirationDate)
	if err != nil {
		return nil, err
	}
	if err := checkDates(purchase, expiration); err != nil {
		return nil, err
	}

	var created *Warranty
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkReferences(ctx, tx, &req.ProductID, &req.CustomerID); err != nil {
			return err
		}
		id, err := tx.Create(ctx, Warranty{
			ProductID: req.ProductID, CustomerID: req.CustomerID, SerialNumber: req.SerialNumber,
			PurchaseDate: purchase, ExpirationDate: expiration, Notes: req.Notes,
		})
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "warranty.create", Entity: "warranty", EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{"product_id": req.ProductID, "customer_id": req.CustomerID},
		}); err != nil {
			return err
		}
		created, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	created.Status = created.StatusOn(s.today())
	return created, nil
}

// Update applies a partial change; the resulting dates must stay ordered.
func (s *Service) Update(ctx context.Context, id int64, req UpdateWarrantyRequest, actorID int64) (*Warranty, error) {
	if err := shared.ValidateStruct(s.validator, req); err != nil {
		return nil, err
	}
	changes, err := req.changes()
	if err != nil {
		return nil, err
	}
	if changes.Empty() {
		return nil, shared.Validation("No fields to update")
	}

	var updated *Warranty
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		purchase, expiration := current.PurchaseDate, current.ExpirationDate
		if changes.PurchaseDate != nil {
			purchase = *changes.PurchaseDate
		}
		if changes.ExpirationDate != nil {
			expiration = *changes.ExpirationDate
		}
		if err := checkDates(purchase, expiration); err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, changes.ProductID, changes.CustomerID); err != nil {
			return err
		}
		if err := tx.Update(ctx, id, changes); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "warranty.update", Entity: "warranty", EntityID: strconv.FormatInt(id, 10),
		}); err != nil {
			return err
		}
		updated, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	updated.Status = updated.StatusOn(s.today())
	return updated, nil
}

// Delete removes a warranty record.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID: actorID, Action: "warranty.delete", Entity: "warranty", EntityID: strconv.FormatInt(id, 10),
		})
	})
}

// ExpiringWithin lists warranties that are still active and expire in the
// next days days, today included.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]Warranty, error) {
	if days < 0 {
		return nil, shared.Validation("Reminder window must not be negative")
	}
	today := s.today()
	list, err := s.repo.ExpiringBetween(ctx, today, today.AddDays(days))
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Status = list[i].StatusOn(today)
	}
	return list, nil
}

func checkDates(purchase, expiration Date) error {
	if expiration.Before(purchase.Time) {
		return shared.Validation("Expiration date cannot be before purchase date")
	}
	return nil
}

func checkReferences(ctx context.Context, tx Repository, productID *string, customerID *int64) error {
	if productID != nil {
		ok, err := tx.ProductExists(ctx, *productID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound("Product not found")
		}
	}
	if customerID != nil {
		ok, err := tx.CustomerExists(ctx, *customerID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NotFound("Customer not found")
		}
	}
	return nil
}
