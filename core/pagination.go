package core

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// PageRequest is the requested page of a listing, as bound from query params.
type PageRequest struct {
	Page    int
	PerPage int
}

// Clean applies the defaults & limits from conf.
func (pr PageRequest) Clean(conf PaginationConfig) PageRequest {
	if pr.Page <= 0 {
		pr.Page = 1
	}
	if pr.PerPage <= 0 {
		pr.PerPage = conf.DefaultPerPage
	}
	if conf.MaxPerPage > 0 && pr.PerPage > conf.MaxPerPage {
		pr.PerPage = conf.MaxPerPage
	}
	if pr.PerPage <= 0 {
		pr.PerPage = 20
	}
	return pr
}

func (pr PageRequest) Offset() int {
	if pr.Page <= 1 {
		return 0
	}
	return (pr.Page - 1) * pr.PerPage
}

func (pr PageRequest) Limit() int {
	return pr.PerPage
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages
}

// Paginate returns the window of a slice of length `length` covered by pr, as [start, end) bounds.
func Paginate(pr PageRequest, length int) (start, end int) {
	start = pr.Offset()
	if start > length {
		start = length
	}
	end = start + pr.Limit()
	if end > length {
		end = length
	}
	return start, end
}
