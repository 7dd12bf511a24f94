package cache

import (
	"errors"

	"github.com/rahul/exoscope/internal/store"
)

var ErrInvalidPage = errors.New("page index must not be negative")

// Page is one fixed-size window over a cached row sequence.
type Page struct {
	Rows       []store.Row `json:"data"`
	Columns    []string    `json:"columns"`
	TotalCount int         `json:"total"`
	PageIndex  int         `json:"page"`
	PageSize   int         `json:"page_size"`
	HasNext    bool        `json:"has_next"`
}

// Page returns rows [index*PageSize, (index+1)*PageSize) of the entry for key. A page past the
// end is empty but still found; an unknown or expired key yields ErrNotFound.
func (c *ResultCache) Page(key string, index int) (Page, error) {
	if index < 0 {
		return Page{}, ErrInvalidPage
	}

	entry, ok := c.Get(key)
	if !ok {
		return Page{}, ErrNotFound
	}

	total := len(entry.Data)
	start := index * PageSize
	end := start + PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	rows := make([]store.Row, end-start)
	copy(rows, entry.Data[start:end])

	return Page{
		Rows:       rows,
		Columns:    entry.Columns,
		TotalCount: total,
		PageIndex:  index,
		PageSize:   PageSize,
		HasNext:    index*PageSize+PageSize < total,
	}, nil
}
