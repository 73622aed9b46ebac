package tickets

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

// Repository persists support tickets and their message threads.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

func (r *Repository) CreateTicket(ctx context.Context, t *models.SupportTicket) error {
	return r.DB(ctx).Create(t).Error
}

func (r *Repository) AddMessage(ctx context.Context, m *models.TicketMessage) error {
	return r.DB(ctx).Create(m).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.SupportTicket, error) {
	var t models.SupportTicket
	if err := r.DB(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) Messages(ctx context.Context, ticketID uuid.UUID) ([]models.TicketMessage, error) {
	var rows []models.TicketMessage
	err := r.DB(ctx).Where("ticket_id = ?", ticketID).Order("created_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// SetStatus writes status and bumps updated_at so active threads sort first.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status enums.TicketStatus, now time.Time) error {
	return r.DB(ctx).Model(&models.SupportTicket{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now}).Error
}

type listParams struct {
	UserID *uuid.UUID
	Status *enums.TicketStatus
	Limit  int
	Cursor *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, p listParams) ([]models.SupportTicket, error) {
	q := r.DB(ctx).Model(&models.SupportTicket{})
	if p.UserID != nil {
		q = q.Where("user_id = ?", *p.UserID)
	}
	if p.Status != nil {
		q = q.Where("status = ?", *p.Status)
	}
	var rows []models.SupportTicket
	err := repo.Keyset(q, p.Cursor, p.Limit).Find(&rows).Error
	return rows, err
}
