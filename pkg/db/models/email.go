package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// EmailCampaign is one admin-initiated send to an audience.
type EmailCampaign struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Type      enums.EmailType     `gorm:"column:type;type:text;not null" json:"type"`
	Audience  enums.EmailAudience `gorm:"column:audience;type:text;not null" json:"audience"`
	Subject   string              `gorm:"column:subject;type:text;not null" json:"subject"`
	Title     string              `gorm:"column:title;type:text;not null" json:"title"`
	Message   string              `gorm:"column:message;type:text;not null" json:"message"`
	CTAText   *string             `gorm:"column:cta_text;type:text" json:"cta_text"`
	CTAURL    *string             `gorm:"column:cta_url;type:text" json:"cta_url"`
	Sent      int                 `gorm:"column:sent;not null;default:0" json:"sent"`
	Skipped   int                 `gorm:"column:skipped;not null;default:0" json:"skipped"`
	Failed    int                 `gorm:"column:failed;not null;default:0" json:"failed"`
	CreatedBy uuid.UUID           `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (e *EmailCampaign) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// EmailLog records the outcome of a single email.
type EmailLog struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CampaignID *uuid.UUID            `gorm:"column:campaign_id;type:uuid;index" json:"campaign_id"`
	UserID     *uuid.UUID            `gorm:"column:user_id;type:uuid" json:"user_id"`
	Recipient  string                `gorm:"column:recipient;type:text;not null" json:"recipient"`
	Subject    string                `gorm:"column:subject;type:text;not null" json:"subject"`
	Status     enums.EmailSendStatus `gorm:"column:status;type:text;not null" json:"status"`
	Reason     *string               `gorm:"column:reason;type:text" json:"reason"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (e *EmailLog) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
