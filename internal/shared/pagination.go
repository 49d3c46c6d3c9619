package shared

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the page size used when the client sends none.
	DefaultLimit = 10
	// MaxLimit caps page sizes requested by clients.
	MaxLimit = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit, total int) Pagination {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// ListFilters represents the common list query parameters.
type ListFilters struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

// Offset returns the row offset for the current page.
func (f ListFilters) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ParseListFilters reads page, limit, search, sort_by and sort_order from the query string.
func ParseListFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return ListFilters{
		Page:      page,
		Limit:     limit,
		Search:    strings.TrimSpace(q.Get("search")),
		SortBy:    strings.TrimSpace(q.Get("sort_by")),
		SortOrder: strings.ToLower(strings.TrimSpace(q.Get("sort_order"))),
	}
}

// OrderBy resolves a whitelisted ORDER BY clause. Unknown fields fall back to
// defaultField; the direction falls back to defaultDir.
func OrderBy(columns map[string]string, sortBy, sortOrder, defaultField, defaultDir string) string {
	column, ok := columns[sortBy]
	if !ok {
		column = columns[defaultField]
	}
	dir := strings.ToUpper(defaultDir)
	switch sortOrder {
	case "asc":
		dir = "ASC"
	case "desc":
		dir = "DESC"
	}
	return column + " " + dir
}
