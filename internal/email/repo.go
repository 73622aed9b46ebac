package email

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/internal/repo"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/pagination"
)

const recentWindow = 30 * 24 * time.Hour

// Recipient is a profile selected for a campaign.
type Recipient struct {
	ID              uuid.UUID
	Email           string
	FullName        string
	MarketingEmails bool
}

// Repository persists campaigns and per-recipient send logs.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) CreateCampaign(ctx context.Context, c *models.EmailCampaign) error {
	return r.DB(ctx).Create(c).Error
}

func (r *Repository) FinishCampaign(ctx context.Context, id uuid.UUID, sent, skipped, failed int) error {
	return r.DB(ctx).Model(&models.EmailCampaign{}).Where("id = ?", id).
		Updates(map[string]any{"sent": sent, "skipped": skipped, "failed": failed}).Error
}

func (r *Repository) InsertLog(ctx context.Context, log *models.EmailLog) error {
	return r.DB(ctx).Create(log).Error
}

func (r *Repository) ListCampaigns(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.EmailCampaign, error) {
	var rows []models.EmailCampaign
	err := repo.Keyset(r.DB(ctx).Model(&models.EmailCampaign{}), cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) ListLogs(ctx context.Context, campaignID uuid.UUID) ([]models.EmailLog, error) {
	var rows []models.EmailLog
	err := r.DB(ctx).Where("campaign_id = ?", campaignID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// Recipients selects customers matching audience, ordered by signup.
func (r *Repository) Recipients(ctx context.Context, audience enums.EmailAudience, now time.Time) ([]Recipient, error) {
	q := r.DB(ctx).Model(&models.Profile{}).
		Select("id", "email", "full_name", "marketing_emails").
		Where("email <> ''")
	switch audience {
	case enums.AudienceWithCredits:
		q = q.Where("credit_balance + similarity_credit_balance > 0")
	case enums.AudienceWithoutCredits:
		q = q.Where("credit_balance + similarity_credit_balance = 0")
	case enums.AudienceMarketing:
		q = q.Where("marketing_emails = ?", true)
	case enums.AudienceRecent:
		q = q.Where("created_at >= ?", now.Add(-recentWindow))
	}
	var rows []Recipient
	err := q.Order("created_at ASC").Scan(&rows).Error
	return rows, err
}
