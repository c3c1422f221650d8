package shared

// DefaultPerPage is used when a caller passes a non-positive page size.
const DefaultPerPage = 20

// Pagination describes one page of an in-memory list.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination clamps page into [1, TotalPages].
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if total < 0 {
		total = 0
	}
	pages := (total + perPage - 1) / perPage
	page = max(page, 1)
	if pages > 0 {
		page = min(page, pages)
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}

// Bounds returns the [start, end) window of the current page.
func (p Pagination) Bounds() (start, end int) {
	start = min((p.Page-1)*p.PerPage, p.Total)
	end = min(start+p.PerPage, p.Total)
	return start, end
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// PrevPage and NextPage feed the pager links.
func (p Pagination) PrevPage() int { return max(p.Page-1, 1) }

func (p Pagination) NextPage() int { return min(p.Page+1, max(p.TotalPages, 1)) }
