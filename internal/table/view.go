package table

import (
	"sort"
	"strings"

	"github.com/hyperengineering/mocklens/pkg/item"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
)

// Query selects, orders and pages the working set.
type Query struct {
	// Search is matched case-insensitively against content and description.
	Search     string `json:"search,omitempty"`
	SortBy     Field  `json:"sort_by,omitempty"`
	Descending bool   `json:"descending,omitempty"`
	// Page is 1-based. PageSize <= 0 returns every match on one page.
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// Page is one page of a projection.
type Page struct {
	Records   []item.Record `json:"items"`
	Total     int           `json:"total"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	PageCount int           `json:"page_count"`
}

// SetQuery stores q as the current table state.
func (c *Controller) SetQuery(q Query) { c.query = q }

// Query returns the current table state.
func (c *Controller) Query() Query { return c.query }

// Current projects the working set through the current query.
func (c *Controller) Current() Page { return c.View(c.query) }

// View filters, sorts and paginates the working set, in that order. Ties in
// the sort keep the working set's order. The working set is not modified.
func (c *Controller) View(q Query) Page {
	rows := c.filter(c.working(), q.Search)
	if q.SortBy != "" {
		c.sortRows(rows, q.SortBy, q.Descending)
	}
	return paginate(rows, q.Page, q.PageSize)
}

func (c *Controller) filter(records []item.Record, search string) []item.Record {
	search = strings.TrimSpace(search)
	if search == "" {
		return item.Clone(records)
	}
	fold := cases.Fold()
	needle := fold.String(search)
	var out []item.Record
	for _, r := range records {
		if strings.Contains(fold.String(r.Content), needle) ||
			strings.Contains(fold.String(r.Description), needle) {
			out = append(out, r)
		}
	}
	return item.Clone(out)
}

func (c *Controller) sortRows(rows []item.Record, field Field, desc bool) {
	var compare func(a, b item.Record) int
	if field.numeric() {
		compare = func(a, b item.Record) int {
			return field.number(a) - field.number(b)
		}
	} else {
		col := collate.New(c.locale)
		compare = func(a, b item.Record) int {
			return col.CompareString(field.text(a), field.text(b))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return compare(rows[i], rows[j]) > 0
		}
		return compare(rows[i], rows[j]) < 0
	})
}

func paginate(rows []item.Record, page, size int) Page {
	total := len(rows)
	if size <= 0 {
		size = total
	}
	pageCount := 0
	if size > 0 {
		pageCount = (total + size - 1) / size
	}
	if page < 1 {
		page = 1
	}
	if pageCount > 0 && page > pageCount {
		page = pageCount
	}
	start := (page - 1) * size
	end := min(start+size, total)
	if start > total {
		start = total
	}
	return Page{
		Records:   rows[start:end],
		Total:     total,
		Page:      page,
		PageSize:  size,
		PageCount: pageCount,
	}
}
