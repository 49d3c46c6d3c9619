package warranties

import "strings"

// CreateWarrantyRequest is the payload for POST /api/warranties.
type CreateWarrantyRequest struct {
	ProductID      string `json:"productId" validate:"required,max=64"`
	CustomerID     int64  `json:"customerId" validate:"required,gt=0"`
	SerialNumber   string `json:"serialNumber" validate:"max=100"`
	PurchaseDate   string `json:"purchaseDate" validate:"required,datetime=2006-01-02"`
	ExpirationDate string `json:"expirationDate" validate:"required,datetime=2006-01-02"`
	Notes          string `json:"notes" validate:"max=5000"`
}

func (r *CreateWarrantyRequest) trim() {
	r.ProductID = strings.TrimSpace(r.ProductID)
	r.SerialNumber = strings.TrimSpace(r.SerialNumber)
	r.PurchaseDate = strings.TrimSpace(r.PurchaseDate)
	r.ExpirationDate = strings.TrimSpace(r.ExpirationDate)
}

// UpdateWarrantyRequest is the partial payload for PUT /api/warranties/{id}.
type UpdateWarrantyRequest struct {
	ProductID      *string `json:"productId,omitempty" validate:"omitempty,min=1,max=64"`
	CustomerID     *int64  `json:"customerId,omitempty" validate:"omitempty,gt=0"`
	SerialNumber   *string `json:"serialNumber,omitempty" validate:"omitempty,max=100"`
	PurchaseDate   *string `json:"purchaseDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ExpirationDate *string `json:"expirationDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes          *string `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

func (r UpdateWarrantyRequest) changes() (Changes, error) {
	c := Changes{CustomerID: r.CustomerID, Notes: r.Notes}
	if r.ProductID != nil {
		v := strings.TrimSpace(*r.ProductID)
		c.ProductID = &v
	}
	if r.SerialNumber != nil {
		v := strings.TrimSpace(*r.SerialNumber)
		c.SerialNumber = &v
	}
	if r.PurchaseDate != nil {
		d, err := ParseDate("purchaseDate", *r.PurchaseDate)
		if err != nil {
			return Changes{}, err
		}
		c.PurchaseDate = &d
	}
	if r.ExpirationDate != nil {
		d, err := ParseDate("expirationDate", *r.ExpirationDate)
		if err != nil {
			return Changes{}, err
		}
		c.ExpirationDate = &d
	}
	return c, nil
}
