package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// Profile mirrors an auth-provider identity plus its credit balances.
type Profile struct {
	ID                      uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email                   string     `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	FullName                string     `gorm:"column:full_name;type:text;not null;default:''" json:"full_name"`
	Role                    enums.Role `gorm:"column:role;type:text;not null;default:customer" json:"role"`
	CreditBalance           int        `gorm:"column:credit_balance;not null;default:0" json:"credit_balance"`
	SimilarityCreditBalance int        `gorm:"column:similarity_credit_balance;not null;default:0" json:"similarity_credit_balance"`
	SubscriptionStatus      *string    `gorm:"column:subscription_status;type:text" json:"subscription_status"`
	EmailNotifications      bool       `gorm:"column:email_notifications;not null;default:true" json:"email_notifications"`
	PushNotifications       bool       `gorm:"column:push_notifications;not null;default:true" json:"push_notifications"`
	MarketingEmails         bool       `gorm:"column:marketing_emails;not null;default:false" json:"marketing_emails"`
	CreatedAt               time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Profile) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Balance returns the balance for the given credit type.
func (p Profile) Balance(creditType enums.CreditType) int {
	if creditType == enums.CreditTypeSimilarity {
		return p.SimilarityCreditBalance
	}
	return p.CreditBalance
}
