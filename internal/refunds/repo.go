package refunds

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

// Repository persists refund requests.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) Create(ctx context.Context, req *models.RefundRequest) error {
	return r.DB(ctx).Create(req).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var req models.RefundRequest
	if err := r.DB(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// CountBlocking counts pending or approved requests for a document.
func (r *Repository) CountBlocking(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.RefundRequest{}).
		Where("document_id = ? AND status IN ?", documentID, []enums.RefundStatus{enums.RefundPending, enums.RefundApproved}).
		Count(&n).Error
	return n, err
}

// Decide moves a pending request to status. It reports false when the
// request was already decided.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status enums.RefundStatus, fields map[string]any) (bool, error) {
	fields["status"] = status
	res := r.DB(ctx).Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, enums.RefundPending).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

type listParams struct {
	UserID *uuid.UUID
	Status *enums.RefundStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, p listParams) ([]models.RefundRequest, error) {
	q := r.DB(ctx).Model(&models.RefundRequest{})
	if p.UserID != nil {
		q = q.Where("user_id = ?", *p.UserID)
	}
	if p.Status != nil {
		q = q.Where("status = ?", *p.Status)
	}
	var rows []models.RefundRequest
	err := repo.Keyset(q, p.Cursor, p.Limit).Find(&rows).Error
	return rows, err
}
