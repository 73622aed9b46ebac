package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// CreditTransaction is an immutable ledger entry against a profile balance.
type CreditTransaction struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type          enums.CreditTransactionType `gorm:"column:type;type:text;not null" json:"type"`
	CreditType    enums.CreditType            `gorm:"column:credit_type;type:text;not null" json:"credit_type"`
	Amount        int                         `gorm:"column:amount;not null" json:"amount"`
	BalanceBefore int                         `gorm:"column:balance_before;not null" json:"balance_before"`
	BalanceAfter  int                         `gorm:"column:balance_after;not null" json:"balance_after"`
	ReferenceType *string                     `gorm:"column:reference_type;type:text" json:"reference_type"`
	ReferenceID   *string                     `gorm:"column:reference_id;type:text" json:"reference_id"`
	Description   string                      `gorm:"column:description;type:text;not null;default:''" json:"description"`
	CreatedBy     *uuid.UUID                  `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (c *CreditTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
