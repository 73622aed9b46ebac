package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// CreditsPurchasedEvent fires once a payment has been granted as credits.
type CreditsPurchasedEvent struct {
	PaymentID  uuid.UUID             `json:"payment_id"`
	UserID     uuid.UUID             `json:"user_id"`
	Provider   enums.PaymentProvider `json:"provider"`
	Credits    int                   `json:"credits"`
	CreditType enums.CreditType      `json:"credit_type"`
	Amount     string                `json:"amount"`
	Currency   string                `json:"currency"`
	NewBalance int                   `json:"new_balance"`
}

// PaymentReversedEvent reports a provider-side reversal of a completed payment.
type PaymentReversedEvent struct {
	PaymentID uuid.UUID             `json:"payment_id"`
	UserID    uuid.UUID             `json:"user_id"`
	Provider  enums.PaymentProvider `json:"provider"`
	Reference string                `json:"reference"`
}

type DocumentUploadedEvent struct {
	DocumentID uuid.UUID      `json:"document_id"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	FileName   string         `json:"file_name"`
	ScanType   enums.ScanType `json:"scan_type"`
	Guest      bool           `json:"guest"`
}

// DocumentCompletedEvent drives the "your report is ready" fan-out.
type DocumentCompletedEvent struct {
	DocumentID           uuid.UUID  `json:"document_id"`
	UserID               *uuid.UUID `json:"user_id,omitempty"`
	GuestEmail           *string    `json:"guest_email,omitempty"`
	FileName             string     `json:"file_name"`
	SimilarityPercentage *float64   `json:"similarity_percentage,omitempty"`
	AIPercentage         *float64   `json:"ai_percentage,omitempty"`
	CompletedAt          time.Time  `json:"completed_at"`
	Source               string     `json:"source"`
}

type DocumentFailedEvent struct {
	DocumentID uuid.UUID  `json:"document_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	FileName   string     `json:"file_name"`
	Message    string     `json:"message"`
}

type TicketRepliedEvent struct {
	TicketID uuid.UUID `json:"ticket_id"`
	UserID   uuid.UUID `json:"user_id"`
	Subject  string    `json:"subject"`
	Preview  string    `json:"preview"`
}

type RefundDecidedEvent struct {
	RefundID   uuid.UUID          `json:"refund_id"`
	UserID     uuid.UUID          `json:"user_id"`
	DocumentID uuid.UUID          `json:"document_id"`
	Status     enums.RefundStatus `json:"status"`
	Credits    int                `json:"credits"`
	Note       string             `json:"note,omitempty"`
}
