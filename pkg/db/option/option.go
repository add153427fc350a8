package option

import (
	"github.com/kronusitsolutions/kronusmed/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm query.
type Option interface {
	Apply(*gorm.DB) *gorm.DB
}

type optionFunc func(*gorm.DB) *gorm.DB

func (f optionFunc) Apply(q *gorm.DB) *gorm.DB { return f(q) }

// ApplyPagination applies cursor paging. It fetches one extra row so the
// caller can detect a next page, and seeks past the decoded cursor using the
// (created_at, id) ordering the cursor was built on.
func ApplyPagination(page pagination.Pagination) Option {
	return optionFunc(func(q *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil {
				q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
			}
		}
		if page.PageSize > 0 {
			q = q.Limit(page.PageSize + 1)
		}
		return q
	})
}
