package domain

// Page is one slice of a paginated listing. Page numbers start at 0.
type Page[T any] struct {
	Rows       []T
	TotalCount int
	Page       int
	Size       int
}

// TotalPages returns the number of pages needed to hold TotalCount rows.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return (p.TotalCount + p.Size - 1) / p.Size
}
