package push

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
)

// Repository persists browser push subscriptions.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Upsert stores sub, moving an existing endpoint to the new owner and keys.
func (r *Repository) Upsert(ctx context.Context, sub *models.PushSubscription) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PushSubscription, error) {
	var rows []models.PushSubscription
	err := r.DB(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) DeleteForUser(ctx context.Context, userID uuid.UUID, endpoint string) (bool, error) {
	res := r.DB(ctx).Delete(&models.PushSubscription{}, "user_id = ? AND endpoint = ?", userID, endpoint)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	return r.DB(ctx).Delete(&models.PushSubscription{}, "endpoint = ?", endpoint).Error
}
