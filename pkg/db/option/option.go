package option

import (
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a query before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryFunc func(db *gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithLimit(limit int) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOffset(offset int) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if offset <= 0 {
			return db
		}
		return db.Offset(offset)
	})
}

func WithOrder(order string) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if strings.TrimSpace(order) == "" {
			return db
		}
		return db.Order(order)
	})
}

// WithWhere adds a raw condition; blank conditions are ignored.
func WithWhere(cond string, args ...any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if strings.TrimSpace(cond) == "" {
			return db
		}
		return db.Where(cond, args...)
	})
}

// WithIDBefore restricts a listing to ids strictly lower than cursor, used
// for keyset pagination over snowflake ids.
func WithIDBefore(cursor int64) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if cursor <= 0 {
			return db
		}
		return db.Where("id < ?", cursor)
	})
}
