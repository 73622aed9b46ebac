package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// RefundRequest asks for the credit spent on a failed document back.
type RefundRequest struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	DocumentID uuid.UUID          `gorm:"column:document_id;type:uuid;not null;index" json:"document_id"`
	Reason     string             `gorm:"column:reason;type:text;not null" json:"reason"`
	Status     enums.RefundStatus `gorm:"column:status;type:text;not null;default:pending" json:"status"`
	CreditType enums.CreditType   `gorm:"column:credit_type;type:text;not null" json:"credit_type"`
	Credits    int                `gorm:"column:credits;not null;default:1" json:"credits"`
	AdminNote  *string            `gorm:"column:admin_note;type:text" json:"admin_note"`
	DecidedBy  *uuid.UUID         `gorm:"column:decided_by;type:uuid" json:"decided_by"`
	DecidedAt  *time.Time         `gorm:"column:decided_at" json:"decided_at"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (r *RefundRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
