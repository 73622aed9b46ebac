package magiclinks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Repository persists magic upload links.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, link *models.MagicUploadLink) error {
	return r.DB(ctx).Create(link).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MagicUploadLink, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) FindByHash(ctx context.Context, hash string) (*models.MagicUploadLink, error) {
	return r.first(ctx, "token_hash = ?", hash)
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.MagicUploadLink, error) {
	var link models.MagicUploadLink
	if err := r.DB(ctx).First(&link, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// Increment takes one upload slot while the link is usable at now.
func (r *Repository) Increment(ctx context.Context, hash string, now time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.MagicUploadLink{}).
		Where("token_hash = ? AND status = ? AND current_uploads < max_uploads", hash, enums.MagicLinkActive).
		Where("(expires_at IS NULL OR expires_at > ?)", now).
		Updates(map[string]any{
			"current_uploads": gorm.Expr("current_uploads + 1"),
			"updated_at":      now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status enums.MagicLinkStatus) (bool, error) {
	res := r.DB(ctx).Model(&models.MagicUploadLink{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Delete(&models.MagicUploadLink{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

// ExpireDue marks active links past their expiry as expired.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.MagicUploadLink{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", enums.MagicLinkActive, now).
		Updates(map[string]any{"status": enums.MagicLinkExpired, "updated_at": now})
	return res.RowsAffected, res.Error
}

// List returns links newest first.
func (r *Repository) List(ctx context.Context, status enums.MagicLinkStatus, limit int, cursor *pagination.Cursor) ([]models.MagicUploadLink, error) {
	q := r.DB(ctx).Model(&models.MagicUploadLink{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.MagicUploadLink
	err := repo.Keyset(q, cursor, limit).Find(&rows).Error
	return rows, err
}
