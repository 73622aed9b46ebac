package extension

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
)

// Repository persists extension tokens and checker slots.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) CreateToken(ctx context.Context, token *models.ExtensionToken) error {
	return r.DB(ctx).Create(token).Error
}

func (r *Repository) FindTokenByHash(ctx context.Context, hash string) (*models.ExtensionToken, error) {
	var token models.ExtensionToken
	if err := r.DB(ctx).First(&token, "token_hash = ?", hash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *Repository) ListTokens(ctx context.Context, userID uuid.UUID) ([]models.ExtensionToken, error) {
	var rows []models.ExtensionToken
	err := r.DB(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// UpdateToken writes fields on a token owned by userID.
func (r *Repository) UpdateToken(ctx context.Context, userID, id uuid.UUID, fields map[string]any) (bool, error) {
	res := r.DB(ctx).Model(&models.ExtensionToken{}).Where("id = ? AND user_id = ?", id, userID).Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) DeleteToken(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Delete(&models.ExtensionToken{}, "id = ? AND user_id = ?", id, userID)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) ListSlots(ctx context.Context, userID uuid.UUID) ([]models.ExtensionSlot, error) {
	var rows []models.ExtensionSlot
	err := r.DB(ctx).Where("user_id = ?", userID).Order("account_label ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindSlot(ctx context.Context, userID uuid.UUID, label string) (*models.ExtensionSlot, error) {
	var slot models.ExtensionSlot
	if err := r.DB(ctx).First(&slot, "user_id = ? AND account_label = ?", userID, label).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

func (r *Repository) CreateSlot(ctx context.Context, slot *models.ExtensionSlot) error {
	return r.DB(ctx).Create(slot).Error
}

// ResetSlotDay zeroes usage when the stored day is not today.
func (r *Repository) ResetSlotDay(ctx context.Context, id uuid.UUID, today string) error {
	return r.DB(ctx).Model(&models.ExtensionSlot{}).
		Where("id = ? AND usage_date <> ?", id, today).
		Updates(map[string]any{"used_today": 0, "usage_date": today, "updated_at": time.Now().UTC()}).Error
}

// AddSlotUsage adds n uses if the daily limit allows it.
func (r *Repository) AddSlotUsage(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	res := r.DB(ctx).Model(&models.ExtensionSlot{}).
		Where("id = ? AND used_today + ? <= daily_limit", id, n).
		Updates(map[string]any{"used_today": gorm.Expr("used_today + ?", n), "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) SetSlotLimit(ctx context.Context, id uuid.UUID, limit int) error {
	return r.DB(ctx).Model(&models.ExtensionSlot{}).Where("id = ?", id).
		Updates(map[string]any{"daily_limit": limit, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) FindSlotByID(ctx context.Context, id uuid.UUID) (*models.ExtensionSlot, error) {
	var slot models.ExtensionSlot
	if err := r.DB(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}
