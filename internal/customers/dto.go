package customers

import "strings"

// CreateCustomerRequest is the payload for POST /api/customers.
type CreateCustomerRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Phone      string `json:"phone" validate:"required,max=50"`
	Address    string `json:"address" validate:"max=500"`
	City       string `json:"city" validate:"max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"max=20"`
	Notes      string `json:"notes" validate:"max=5000"`
}

func (r *CreateCustomerRequest) trim() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.City = strings.TrimSpace(r.City)
	r.State = strings.TrimSpace(r.State)
	r.PostalCode = strings.TrimSpace(r.PostalCode)
}

// UpdateCustomerRequest is the partial payload for PUT /api/customers/{id}.
type UpdateCustomerRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,min=1,max=50"`
	Address    *string `json:"address,omitempty" validate:"omitempty,max=500"`
	City       *string `json:"city,omitempty" validate:"omitempty,max=100"`
	State      *string `json:"state,omitempty" validate:"omitempty,max=100"`
	PostalCode *string `json:"postalCode,omitempty" validate:"omitempty,max=20"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

// Empty reports whether the request changes nothing.
func (r UpdateCustomerRequest) Empty() bool {
	return r.Name == nil && r.Email == nil && r.Phone == nil && r.Address == nil &&
		r.City == nil && r.State == nil && r.PostalCode == nil && r.Notes == nil
}

func (r UpdateCustomerRequest) changes() Changes {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return Changes{
		Name:       trim(r.Name),
		Email:      trim(r.Email),
		Phone:      trim(r.Phone),
		Address:    trim(r.Address),
		City:       trim(r.City),
		State:      trim(r.State),
		PostalCode: trim(r.PostalCode),
		Notes:      r.Notes,
	}
}
