package customers

import (
	"time"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Customer is a warranty holder.
type Customer struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postalCode"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ListFilters narrows the customer listing.
type ListFilters struct {
	shared.ListFilters
}

// Changes carries the columns an update writes; nil fields are left untouched.
type Changes struct {
	Name       *string
	Email      *string
	Phone      *string
	Address    *string
	City       *string
	State      *string
	PostalCode *string
	Notes      *string
}
