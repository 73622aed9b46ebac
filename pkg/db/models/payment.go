package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// Payment is a credit purchase attempt at one provider.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:uq_payment_provider_reference" json:"provider"`
	ProviderReference string                `gorm:"column:provider_reference;type:text;not null;uniqueIndex:uq_payment_provider_reference" json:"provider_reference"`
	UserID            uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	PackageID         string                `gorm:"column:package_id;type:text;not null" json:"package_id"`
	Credits           int                   `gorm:"column:credits;not null" json:"credits"`
	CreditType        enums.CreditType      `gorm:"column:credit_type;type:text;not null" json:"credit_type"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string                `gorm:"column:currency;type:text;not null" json:"currency"`
	Status            enums.PaymentStatus   `gorm:"column:status;type:text;not null;default:pending" json:"status"`
	ProviderTxnID     *string               `gorm:"column:provider_transaction_id;type:text" json:"provider_transaction_id"`
	CompletedAt       *time.Time            `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PaymentIdempotencyKey gates credit grants: one row per provider transaction.
type PaymentIdempotencyKey struct {
	Key       string     `gorm:"column:key;type:text;primaryKey" json:"key"`
	PaymentID *uuid.UUID `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// WebhookEvent stores every delivery received from a payment provider.
type WebhookEvent struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Provider         enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:uq_webhook_provider_event" json:"provider"`
	EventID          string                `gorm:"column:event_id;type:text;not null;uniqueIndex:uq_webhook_provider_event" json:"event_id"`
	EventType        string                `gorm:"column:event_type;type:text;not null" json:"event_type"`
	Payload          json.RawMessage       `gorm:"column:payload;type:jsonb" json:"payload"`
	SignatureValid   bool                  `gorm:"column:signature_valid;not null;default:false" json:"signature_valid"`
	ProcessingStatus enums.WebhookStatus   `gorm:"column:processing_status;type:text;not null;default:received" json:"processing_status"`
	Error            *string               `gorm:"column:error;type:text" json:"error"`
	ReceivedAt       time.Time             `gorm:"column:received_at;autoCreateTime" json:"received_at"`
	ProcessedAt      *time.Time            `gorm:"column:processed_at" json:"processed_at"`
}

func (w *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// Invoice is issued once per completed payment.
type Invoice struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentID uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;uniqueIndex" json:"payment_id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Number    string          `gorm:"column:number;type:text;not null;uniqueIndex" json:"number"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency  string          `gorm:"column:currency;type:text;not null" json:"currency"`
	IssuedAt  time.Time       `gorm:"column:issued_at;not null" json:"issued_at"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// Receipt confirms settlement of an invoice.
type Receipt struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentID uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;uniqueIndex" json:"payment_id"`
	InvoiceID uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null" json:"invoice_id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Number    string          `gorm:"column:number;type:text;not null;uniqueIndex" json:"number"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency  string          `gorm:"column:currency;type:text;not null" json:"currency"`
	Credits   int             `gorm:"column:credits;not null" json:"credits"`
	IssuedAt  time.Time       `gorm:"column:issued_at;not null" json:"issued_at"`
}

func (r *Receipt) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
