package core

import "testing"

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name                          string
		page, perPage, total          int
		wantPage, wantPerPage, wantTP int
		wantNext                      bool
	}{
		{name: "defaults", wantPage: 1, wantPerPage: 20},
		{name: "exact pages", page: 1, perPage: 10, total: 30, wantPage: 1, wantPerPage: 10, wantTP: 3, wantNext: true},
		{name: "partial last page", page: 4, perPage: 10, total: 31, wantPage: 4, wantPerPage: 10, wantTP: 4},
		{name: "negative total", page: 2, perPage: 5, total: -3, wantPage: 2, wantPerPage: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.perPage, tt.total)
			if p.Page != tt.wantPage || p.PerPage != tt.wantPerPage || p.TotalPages != tt.wantTP {
				t.Errorf("NewPagination() = %+v; want page %d perPage %d totalPages %d", p, tt.wantPage, tt.wantPerPage, tt.wantTP)
			}
			if p.HasNext() != tt.wantNext {
				t.Errorf("HasNext() = %v; want %v", p.HasNext(), tt.wantNext)
			}
		})
	}
}

func TestPageRequest_Clean(t *testing.T) {
	conf := PaginationConfig{DefaultPerPage: 20, MaxPerPage: 50}
	tests := []struct {
		name string
		req  PageRequest
		want PageRequest
	}{
		{name: "empty", want: PageRequest{Page: 1, PerPage: 20}},
		{name: "too many per page", req: PageRequest{Page: 3, PerPage: 500}, want: PageRequest{Page: 3, PerPage: 50}},
		{name: "negative", req: PageRequest{Page: -1, PerPage: -5}, want: PageRequest{Page: 1, PerPage: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Clean(conf); got != tt.want {
				t.Errorf("Clean() = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name               string
		req                PageRequest
		length             int
		wantStart, wantEnd int
	}{
		{name: "first page", req: PageRequest{Page: 1, PerPage: 2}, length: 5, wantStart: 0, wantEnd: 2},
		{name: "last page", req: PageRequest{Page: 3, PerPage: 2}, length: 5, wantStart: 4, wantEnd: 5},
		{name: "out of range", req: PageRequest{Page: 9, PerPage: 2}, length: 5, wantStart: 5, wantEnd: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := Paginate(tt.req, tt.length)
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("Paginate() = [%d, %d); want [%d, %d)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
