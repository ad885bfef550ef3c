package domain

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// PageRequest is a 1-based page request.
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Normalize clamps page and size into range.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the row offset of the page.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Size
}

// Page is one page of results.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// NewPage builds a Page, never returning a nil Items slice.
func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	req = req.Normalize()
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: req.Page, Size: req.Size}
}

// Paginate slices an in-memory result set.
func Paginate[T any](all []T, req PageRequest) Page[T] {
	req = req.Normalize()
	start := req.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + req.Size
	if end > len(all) {
		end = len(all)
	}
	return NewPage(append([]T(nil), all[start:end]...), len(all), req)
}
