package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// Notification stores in-app notifications for a user or for the admin inbox.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID                 `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Audience  enums.NotificationAudience `gorm:"column:audience;type:text;not null;default:user" json:"audience"`
	Type      enums.NotificationType     `gorm:"column:type;type:text;not null" json:"type"`
	Title     string                     `gorm:"column:title;type:text;not null" json:"title"`
	Message   string                     `gorm:"column:message;type:text;not null" json:"message"`
	Link      *string                    `gorm:"column:link;type:text" json:"link"`
	ReadAt    *time.Time                 `gorm:"column:read_at" json:"read_at"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// PushSubscription is a browser web-push endpoint registered by a user.
type PushSubscription struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Endpoint  string    `gorm:"column:endpoint;type:text;not null;uniqueIndex" json:"endpoint"`
	P256dh    string    `gorm:"column:p256dh;type:text;not null" json:"-"`
	Auth      string    `gorm:"column:auth;type:text;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (p *PushSubscription) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
