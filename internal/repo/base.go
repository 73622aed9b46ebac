package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a copy scoped to tx. A nil tx keeps the current connection.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// Keyset applies newest-first keyset pagination and fetches one extra row
// so callers can detect a following page.
func Keyset(q *gorm.DB, cursor *pagination.Cursor, limit int) *gorm.DB {
	return KeysetOn(q, "created_at", cursor, limit)
}

// KeysetOn is Keyset over a different timestamp column.
func KeysetOn(q *gorm.DB, column string, cursor *pagination.Cursor, limit int) *gorm.DB {
	if cursor != nil {
		q = q.Where("(("+column+" < ?) OR ("+column+" = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	return q.Order(column + " DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(limit))
}
