package service

import "math"

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// maxPage keeps Page*Size within an int.
	maxPage = math.MaxInt / maxPageSize
)

// Pagination selects a page of a listing. Page numbers start at 0.
type Pagination struct {
	Page int
	Size int
}

func (p Pagination) normalize() Pagination {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Pagination) offset() int {
	return p.Page * p.Size
}
