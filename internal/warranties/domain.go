package warranties

import (
	"time"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Status values reported for a warranty relative to today.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// Warranty links a product sold to a customer with its coverage window.
type Warranty struct {
	ID             int64     `json:"id"`
	ProductID      string    `json:"productId"`
	CustomerID     int64     `json:"customerId"`
	SerialNumber   string    `json:"serialNumber"`
	PurchaseDate   Date      `json:"purchaseDate"`
	ExpirationDate Date      `json:"expirationDate"`
	Notes          string    `json:"notes"`
	Status         string    `json:"status"`
	ProductName    string    `json:"productName"`
	Category       string    `json:"category"`
	Subcategory    string    `json:"subcategory"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail"`
	CustomerPhone  string    `json:"customerPhone"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// StatusOn reports whether the warranty still covers today.
func (w Warranty) StatusOn(today Date) string {
	if w.ExpirationDate.Before(today.Time) {
		return StatusExpired
	}
	return StatusActive
}

// ListFilters narrows the warranty listing. Today anchors the status filter.
type ListFilters struct {
	shared.ListFilters
	ProductID  string
	CustomerID int64
	Status     string
	Today      Date
}

// Changes carries the columns an update writes; nil fields are left untouched.
type Changes struct {
	ProductID      *string
	CustomerID     *int64
	SerialNumber   *string
	PurchaseDate   *Date
	ExpirationDate *Date
	Notes          *string
}

// Empty reports whether nothing changes.
func (c Changes) Empty() bool {
	return c.ProductID == nil && c.CustomerID == nil && c.SerialNumber == nil &&
		c.PurchaseDate == nil && c.ExpirationDate == nil && c.Notes == nil
}
