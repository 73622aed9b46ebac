package notifications

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

// Inbox selects whose notifications an operation touches. Admin inboxes are
// shared by every admin.
type Inbox struct {
	UserID uuid.UUID
	Admin  bool
}

func (i Inbox) apply(q *gorm.DB) *gorm.DB {
	if i.Admin {
		return q.Where("audience = ?", enums.NotificationAudienceAdmin)
	}
	return q.Where("audience = ? AND user_id = ?", enums.NotificationAudienceUser, i.UserID)
}

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	CountUnread(ctx context.Context, inbox Inbox) (int64, error)
	MarkRead(ctx context.Context, inbox Inbox, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, inbox Inbox, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	Inbox      Inbox
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// List returns up to Limit+1 rows so the caller can detect a following page.
func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	query := params.Inbox.apply(r.db.WithContext(ctx).Model(&models.Notification{}))
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var notifications []models.Notification
	if err := repo.Keyset(query, params.Cursor, params.Limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) CountUnread(ctx context.Context, inbox Inbox) (int64, error) {
	var count int64
	err := inbox.apply(r.db.WithContext(ctx).Model(&models.Notification{})).
		Where("read_at IS NULL").
		Count(&count).Error
	return count, err
}

func (r *repositoryImpl) MarkRead(ctx context.Context, inbox Inbox, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	result := inbox.apply(r.db.WithContext(ctx).Model(&models.Notification{})).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return notificationMarkResult{}, result.Error
	}

	mark := notificationMarkResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := inbox.apply(r.db.WithContext(ctx).Model(&models.Notification{})).
		Where("id = ?", notificationID).
		Count(&count).Error; err != nil {
		return notificationMarkResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, inbox Inbox, now time.Time) (int64, error) {
	result := inbox.apply(r.db.WithContext(ctx).Model(&models.Notification{})).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes read notifications created before cutoff.
func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
