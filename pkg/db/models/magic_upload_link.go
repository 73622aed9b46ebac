package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// MagicUploadLink lets guests upload a bounded number of documents without an account.
type MagicUploadLink struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TokenHash      string                `gorm:"column:token_hash;type:text;not null;uniqueIndex" json:"-"`
	Label          string                `gorm:"column:label;type:text;not null;default:''" json:"label"`
	MaxUploads     int                   `gorm:"column:max_uploads;not null" json:"max_uploads"`
	CurrentUploads int                   `gorm:"column:current_uploads;not null;default:0" json:"current_uploads"`
	ExpiresAt      *time.Time            `gorm:"column:expires_at" json:"expires_at"`
	Status         enums.MagicLinkStatus `gorm:"column:status;type:text;not null;default:active" json:"status"`
	ScanType       enums.ScanType        `gorm:"column:scan_type;type:text;not null;default:full" json:"scan_type"`
	CreatedBy      uuid.UUID             `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (m *MagicUploadLink) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// Remaining returns how many uploads the link still accepts.
func (m MagicUploadLink) Remaining() int {
	if left := m.MaxUploads - m.CurrentUploads; left > 0 {
		return left
	}
	return 0
}
