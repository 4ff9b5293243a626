// Package pagination holds the page arithmetic shared by the search and
// export paths. Keeping it in one place means the HTTP layer and the store
// can never disagree about what page N of a result set means.
package pagination

// Page describes one page of a larger result set.
type Page struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// Offset returns the row offset for a 1-based page number.
// Page values below 1 are treated as page 1.
func Offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// New computes the full pagination envelope for a result set.
// limit must be >= 1; callers clamp limits before reaching here.
func New(page, limit, total int) Page {
	if page < 1 {
		page = 1
	}
	totalPages := (total + limit - 1) / limit
	return Page{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// Clamp bounds a requested limit to [1, max], substituting def when the
// request carried no limit at all.
func Clamp(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
