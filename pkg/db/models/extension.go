package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExtensionToken authenticates the browser extension or scan agent.
type ExtensionToken struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Name             string     `gorm:"column:name;type:text;not null" json:"name"`
	TokenHash        string     `gorm:"column:token_hash;type:text;not null;uniqueIndex" json:"-"`
	TokenPrefix      string     `gorm:"column:token_prefix;type:text;not null" json:"token_prefix"`
	IsActive         bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ExpiresAt        *time.Time `gorm:"column:expires_at" json:"expires_at"`
	LastUsedAt       *time.Time `gorm:"column:last_used_at" json:"last_used_at"`
	LastHeartbeatAt  *time.Time `gorm:"column:last_heartbeat_at" json:"last_heartbeat_at"`
	ExtensionVersion *string    `gorm:"column:extension_version;type:text" json:"extension_version"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (e *ExtensionToken) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// ExtensionSlot tracks daily usage of one checker account.
type ExtensionSlot struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_extension_slot_account" json:"user_id"`
	AccountLabel string    `gorm:"column:account_label;type:text;not null;uniqueIndex:uq_extension_slot_account" json:"account_label"`
	DailyLimit   int       `gorm:"column:daily_limit;not null" json:"daily_limit"`
	UsedToday    int       `gorm:"column:used_today;not null;default:0" json:"used_today"`
	UsageDate    string    `gorm:"column:usage_date;type:text;not null" json:"usage_date"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *ExtensionSlot) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
