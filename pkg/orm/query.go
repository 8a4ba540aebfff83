// Package orm is a small query builder over gorm for list endpoints: scoped
// filters, ordering, pagination and read-through caching.
//
//	var products []models.Product
//	page, err := orm.From(db).Model(&models.Product{}).
//	    Where("active = ?", true).
//	    OrderBy("name").
//	    Paginate(ctx, 2, 20, &products)
package orm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/ventas/pkg/cache"
	"github.com/shashiranjanraj/ventas/pkg/database"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination is the page metadata returned next to list results.
type Pagination struct {
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

type Query struct {
	db *gorm.DB
}

// DB starts a query on the default connection.
func DB() *Query {
	return &Query{db: database.DB}
}

// From starts a query on db.
func From(db *gorm.DB) *Query {
	return &Query{db: db}
}

func (q *Query) Model(v any) *Query {
	return &Query{db: q.db.Model(v)}
}

func (q *Query) Where(query string, args ...any) *Query {
	return &Query{db: q.db.Where(query, args...)}
}

// WhereIf applies the condition only when ok is true.
func (q *Query) WhereIf(ok bool, query string, args ...any) *Query {
	if !ok {
		return q
	}
	return q.Where(query, args...)
}

func (q *Query) OrderBy(column string) *Query {
	return &Query{db: q.db.Order(column)}
}

func (q *Query) Preload(assoc string) *Query {
	return &Query{db: q.db.Preload(assoc)}
}

func (q *Query) Get(ctx context.Context, dest any) error {
	return q.db.WithContext(ctx).Find(dest).Error
}

func (q *Query) First(ctx context.Context, dest any) error {
	return q.db.WithContext(ctx).First(dest).Error
}

// Paginate fills dest with one page and returns the page metadata. page and
// perPage are clamped to sane values.
func (q *Query) Paginate(ctx context.Context, page, perPage int, dest any) (Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	db := q.db.WithContext(ctx)
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Pagination{}, err
	}
	if err := db.Offset((page - 1) * perPage).Limit(perPage).Find(dest).Error; err != nil {
		return Pagination{}, err
	}

	last := int((total + int64(perPage) - 1) / int64(perPage))
	if last < 1 {
		last = 1
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, LastPage: last}, nil
}

// Cache serves dest from the cache under key, loading it with Find on a
// miss. A record-not-found First is not cached.
func (q *Query) Cache(ctx context.Context, key string, ttl time.Duration, dest any) error {
	if cache.Get(key, dest) {
		return nil
	}
	if err := q.db.WithContext(ctx).Find(dest).Error; err != nil {
		return err
	}
	_ = cache.Set(key, dest, ttl)
	return nil
}

// CacheFirst is Cache for a single record.
func (q *Query) CacheFirst(ctx context.Context, key string, ttl time.Duration, dest any) error {
	if cache.Get(key, dest) {
		return nil
	}
	if err := q.db.WithContext(ctx).Take(dest).Error; err != nil {
		return err
	}
	_ = cache.Set(key, dest, ttl)
	return nil
}
