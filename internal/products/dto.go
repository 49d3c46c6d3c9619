package products

// CreateProductRequest is the payload for POST /api/products.
type CreateProductRequest struct {
	ID             string         `json:"id" validate:"required,max=64"`
	Name           string         `json:"name" validate:"required,max=200"`
	Description    string         `json:"description" validate:"max=10000"`
	Price          float64        `json:"price" validate:"required,gt=0"`
	Images         []string       `json:"images" validate:"omitempty,dive,required"`
	Category       string         `json:"category" validate:"required,max=100"`
	Subcategory    string         `json:"subcategory" validate:"required,max=100"`
	Features       []string       `json:"features"`
	Specifications map[string]any `json:"specifications"`
	InStock        *bool          `json:"inStock"`
}

// UpdateProductRequest is the partial payload for PUT /api/products/{id}.
type UpdateProductRequest struct {
	Name           *string         `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string         `json:"description,omitempty" validate:"omitempty,max=10000"`
	Price          *float64        `json:"price,omitempty" validate:"omitempty,gt=0"`
	Images         *[]string       `json:"images,omitempty"`
	Category       *string         `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Subcategory    *string         `json:"subcategory,omitempty" validate:"omitempty,min=1,max=100"`
	Features       *[]string       `json:"features,omitempty"`
	Specifications *map[string]any `json:"specifications,omitempty"`
	InStock        *bool           `json:"inStock,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r UpdateProductRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.Price == nil && r.Images == nil &&
		r.Category == nil && r.Subcategory == nil && r.Features == nil &&
		r.Specifications == nil && r.InStock == nil
}
