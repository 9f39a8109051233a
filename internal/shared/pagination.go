package shared

// Pagination describes one page of a larger result set. Handlers embed
// it next to the rows so clients can walk the set without a count query
// of their own.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives page metadata from a total row count. Page and
// per-page values at or below zero fall back to the first page of 20.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}
