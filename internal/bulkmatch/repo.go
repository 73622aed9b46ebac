package bulkmatch

import (
	"context"

	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Repository stores matcher outcomes.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Insert(ctx context.Context, entry *models.BulkMatchLog) error {
	return r.DB(ctx).Create(entry).Error
}

func (r *Repository) List(ctx context.Context, outcome enums.MatchOutcome, limit int, cursor *pagination.Cursor) ([]models.BulkMatchLog, error) {
	q := r.DB(ctx).Model(&models.BulkMatchLog{})
	if outcome != "" {
		q = q.Where("outcome = ?", outcome)
	}
	var rows []models.BulkMatchLog
	err := repo.Keyset(q, cursor, limit).Find(&rows).Error
	return rows, err
}
