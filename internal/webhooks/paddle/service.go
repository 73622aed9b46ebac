package paddlewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/webhooks"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

const eventTransactionCompleted = "transaction.completed"

var eventSchema = webhooks.MustCompileSchema("paddle-event.json", `{
	"type": "object",
	"required": ["event_id", "event_type", "data"],
	"properties": {
		"event_id": {"type": "string", "minLength": 1},
		"event_type": {"type": "string", "minLength": 1},
		"occurred_at": {"type": "string"},
		"data": {"type": "object"}
	}
}`)

var transactionSchema = webhooks.MustCompileSchema("paddle-transaction.json", `{
	"type": "object",
	"required": ["id", "custom_data"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"status": {"type": "string"},
		"currency_code": {"type": "string"},
		"custom_data": {
			"type": "object",
			"required": ["payment_id"],
			"properties": {"payment_id": {"type": "string", "format": "uuid"}}
		},
		"details": {
			"type": "object",
			"properties": {
				"totals": {
					"type": "object",
					"properties": {"total": {"type": "string", "pattern": "^[0-9]+$"}}
				}
			}
		}
	}
}`)

type granter interface {
	Grant(ctx context.Context, input payments.GrantInput) (*payments.GrantResult, error)
}

type processor interface {
	Process(ctx context.Context, d webhooks.Delivery, handle webhooks.HandlerFunc) (enums.WebhookStatus, error)
}

type envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type transaction struct {
	ID           string `json:"id"`
	CurrencyCode string `json:"currency_code"`
	CustomData   struct {
		PaymentID string `json:"payment_id"`
	} `json:"custom_data"`
	Details struct {
		Totals struct {
			Total string `json:"total"`
		} `json:"totals"`
	} `json:"details"`
}

// Service consumes Paddle Billing notifications.
type Service struct {
	payments  granter
	processor processor
	secret    string
	maxAge    time.Duration
	now       func() time.Time
}

func NewService(payments granter, processor processor, secret string, maxAge time.Duration, now func() time.Time) (*Service, error) {
	if payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments service required")
	}
	if processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook processor required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paddle webhook secret required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{payments: payments, processor: processor, secret: secret, maxAge: maxAge, now: now}, nil
}

// HandleDelivery verifies, records and applies one notification.
func (s *Service) HandleDelivery(ctx context.Context, signature string, body []byte) (enums.WebhookStatus, error) {
	if err := eventSchema.Validate(body); err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paddle payload")
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paddle payload")
	}
	sigErr := Verify(signature, body, s.secret, s.maxAge, s.now())

	return s.processor.Process(ctx, webhooks.Delivery{
		Provider:       enums.ProviderPaddle,
		EventID:        env.EventID,
		EventType:      env.EventType,
		Payload:        body,
		SignatureValid: sigErr == nil,
	}, func(ctx context.Context) (enums.WebhookStatus, error) {
		if env.EventType != eventTransactionCompleted {
			return enums.WebhookIgnored, nil
		}
		return s.completeTransaction(ctx, env.Data)
	})
}

func (s *Service) completeTransaction(ctx context.Context, raw json.RawMessage) (enums.WebhookStatus, error) {
	if err := transactionSchema.Validate(raw); err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paddle transaction")
	}
	var txn transaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paddle transaction")
	}
	paymentID, err := uuid.Parse(txn.CustomData.PaymentID)
	if err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	input := payments.GrantInput{
		Provider:      enums.ProviderPaddle,
		PaymentID:     &paymentID,
		TransactionID: txn.ID,
		Currency:      txn.CurrencyCode,
	}
	if total := txn.Details.Totals.Total; total != "" {
		minor, err := decimal.NewFromString(total)
		if err == nil {
			amount := minor.Shift(-2)
			input.Amount = &amount
		}
	}
	result, err := s.payments.Grant(ctx, input)
	if err != nil {
		return enums.WebhookFailed, err
	}
	if result.AlreadyProcessed {
		return enums.WebhookDuplicate, nil
	}
	return enums.WebhookProcessed, nil
}
