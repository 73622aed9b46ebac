package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

type SupportTicket struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Subject   string             `gorm:"column:subject;type:text;not null" json:"subject"`
	Status    enums.TicketStatus `gorm:"column:status;type:text;not null;default:open" json:"status"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (s *SupportTicket) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

type TicketMessage struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TicketID  uuid.UUID `gorm:"column:ticket_id;type:uuid;not null;index" json:"ticket_id"`
	AuthorID  uuid.UUID `gorm:"column:author_id;type:uuid;not null" json:"author_id"`
	IsStaff   bool      `gorm:"column:is_staff;not null;default:false" json:"is_staff"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (m *TicketMessage) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
