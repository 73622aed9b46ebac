package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// errorTextLimit bounds last_error and the dead letter message columns.
const errorTextLimit = 1024

var errNoTx = errors.New("outbox: transaction required")

// Repository owns outbox_events and its dead letter table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// Claim selects up to limit unpublished rows that still have attempts left,
// oldest first. On Postgres the rows stay locked until tx ends and other
// relays skip them.
func (r *Repository) Claim(tx *gorm.DB, limit, attemptCeiling int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Where("published_at IS NULL")
	if attemptCeiling > 0 {
		q = q.Where("attempt_count < ?", attemptCeiling)
	}
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) Ack(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Update("published_at", at.UTC()).Error
}

// Retry bumps the attempt counter and keeps the row pending.
func (r *Repository) Retry(tx *gorm.DB, id uuid.UUID, cause error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    clip(errText(cause)),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// DeadLetter copies the row into outbox_dlq and pins its attempt counter at
// the ceiling so Claim never returns it again.
func (r *Repository) DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, attemptCeiling int, at time.Time) error {
	if tx == nil {
		return errNoTx
	}
	msg := clip(errText(cause))
	entry := models.OutboxDeadLetter{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		Reason:        reason,
		Message:       &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      at.UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{"last_error": msg, "attempt_count": attemptCeiling}).Error
}

// DeadLetters lists the newest dead letters first.
func (r *Repository) DeadLetters(ctx context.Context, limit int) ([]models.OutboxDeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxDeadLetter
	err := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Purge deletes rows created before cutoff that are either published or
// stuck at the attempt ceiling.
func (r *Repository) Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, attemptCeiling int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", attemptCeiling).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func clip(s string) string {
	if len(s) > errorTextLimit {
		return s[:errorTextLimit]
	}
	return s
}
