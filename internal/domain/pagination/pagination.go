// Package pagination holds the shared page/limit primitives used by listing
// and statistics queries.
package pagination

// Limits applied by Normalize. A page is always at least 1 and a page size is
// clamped into [1, MaxLimit].
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params selects one page of a listing.
type Params struct {
	Page  int
	Limit int
}

// Normalize coerces the parameters into their valid ranges: page >= 1 and
// limit in [1, MaxLimit]. A zero limit falls back to DefaultLimit.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit == 0:
		p.Limit = DefaultLimit
	case p.Limit < 1:
		p.Limit = 1
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the row offset for the selected page. Callers must
// Normalize first.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one page of results together with the total number of matching rows.
type Page[T any] struct {
	Items      []T
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// NewPage builds a Page from a fetched slice and the matching row count.
func NewPage[T any](items []T, total int64, p Params) Page[T] {
	pages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		pages++
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: pages,
	}
}
