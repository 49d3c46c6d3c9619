package products

import (
	"time"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Product is a catalog entry identified by its caller-supplied SKU.
type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Price          float64        `json:"price"`
	Images         []string       `json:"images"`
	Category       string         `json:"category"`
	Subcategory    string         `json:"subcategory"`
	Features       []string       `json:"features"`
	Specifications map[string]any `json:"specifications"`
	InStock        bool           `json:"inStock"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ListFilters narrows the product listing.
type ListFilters struct {
	shared.ListFilters
	Category    string
	Subcategory string
}
