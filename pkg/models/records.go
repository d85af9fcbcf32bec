package models

// Record is one table row keyed by column name.
type Record = map[string]any

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 100
)

// SortOrder is the direction of a list sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListParams are the paging and sorting options of a record listing.
type ListParams struct {
	Page             int
	Limit            int
	SortBy           string
	SortOrder        SortOrder
	IncludeRelations bool
}

// Normalize fills defaults and clamps out-of-range values.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.SortOrder != SortDesc {
		p.SortOrder = SortAsc
	}
	return p
}

// Offset returns the number of rows skipped before the page.
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ListResult is one page of records.
type ListResult struct {
	Data       []Record `json:"data"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int64    `json:"totalPages"`
}

// TotalPages returns ceil(total/limit).
func TotalPages(total int64, limit int) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}

// DeleteResult reports a single-record deletion.
type DeleteResult struct {
	DeletedID any    `json:"deletedId"`
	Record    Record `json:"data,omitempty"`
}
