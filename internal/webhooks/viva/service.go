package vivawebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/webhooks"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/viva"
)

// Viva event type identifiers.
const (
	EventTransactionPaymentCreated = 1796
	EventTransactionReversed       = 1797
)

const statusFinished = "F"

var eventSchema = webhooks.MustCompileSchema("viva-event.json", `{
	"type": "object",
	"required": ["EventTypeId", "EventData"],
	"properties": {
		"EventTypeId": {"type": "integer"},
		"MessageId": {"type": ["string", "null"]},
		"EventData": {
			"type": "object",
			"required": ["TransactionId", "OrderCode"],
			"properties": {
				"TransactionId": {"type": "string", "minLength": 1},
				"OrderCode": {"type": ["integer", "string"]},
				"StatusId": {"type": ["string", "null"]},
				"Amount": {"type": ["number", "null"]}
			}
		}
	}
}`)

type paymentsService interface {
	Grant(ctx context.Context, input payments.GrantInput) (*payments.GrantResult, error)
	Reverse(ctx context.Context, input payments.ReverseInput) (*models.Payment, error)
}

type processor interface {
	Process(ctx context.Context, d webhooks.Delivery, handle webhooks.HandlerFunc) (enums.WebhookStatus, error)
}

type transactionLookup interface {
	Transaction(ctx context.Context, transactionID string) (*viva.Transaction, error)
}

type notification struct {
	EventTypeID int    `json:"EventTypeId"`
	MessageID   string `json:"MessageId"`
	EventData   struct {
		TransactionID string          `json:"TransactionId"`
		OrderCode     json.Number     `json:"OrderCode"`
		StatusID      string          `json:"StatusId"`
		Amount        decimal.Decimal `json:"Amount"`
		CurrencyCode  string          `json:"CurrencyCode"`
	} `json:"EventData"`
}

// Service consumes Viva Wallet webhook notifications. Viva does not sign
// deliveries, so payment events are trusted only after the transaction is
// confirmed through the API.
type Service struct {
	payments        paymentsService
	processor       processor
	transactions    transactionLookup
	verificationKey string
}

func NewService(payments paymentsService, processor processor, transactions transactionLookup, verificationKey string) (*Service, error) {
	if payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments service required")
	}
	if processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook processor required")
	}
	if transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "viva transaction lookup required")
	}
	if strings.TrimSpace(verificationKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "viva verification key required")
	}
	return &Service{payments: payments, processor: processor, transactions: transactions, verificationKey: verificationKey}, nil
}

// VerificationKey is echoed back to Viva when it validates the endpoint.
func (s *Service) VerificationKey() string {
	return s.verificationKey
}

// HandleDelivery confirms, records and applies one notification.
func (s *Service) HandleDelivery(ctx context.Context, body []byte) (enums.WebhookStatus, error) {
	if err := eventSchema.Validate(body); err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid viva payload")
	}
	var n notification
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode viva payload")
	}
	eventType := strconv.Itoa(n.EventTypeID)
	eventID := strings.TrimSpace(n.MessageID)
	if eventID == "" {
		eventID = n.EventData.TransactionID + ":" + eventType
	}

	var (
		txn      *viva.Transaction
		verified = true
	)
	if n.EventTypeID == EventTransactionPaymentCreated || n.EventTypeID == EventTransactionReversed {
		var err error
		txn, err = s.confirm(ctx, n)
		switch {
		case errors.Is(err, errUnconfirmed):
			verified = false
		case err != nil:
			return enums.WebhookFailed, err
		}
	}

	return s.processor.Process(ctx, webhooks.Delivery{
		Provider:       enums.ProviderViva,
		EventID:        eventID,
		EventType:      eventType,
		Payload:        body,
		SignatureValid: verified,
	}, func(ctx context.Context) (enums.WebhookStatus, error) {
		switch n.EventTypeID {
		case EventTransactionPaymentCreated:
			return s.grant(ctx, txn)
		case EventTransactionReversed:
			if _, err := s.payments.Reverse(ctx, payments.ReverseInput{
				Provider:      enums.ProviderViva,
				Reference:     txn.OrderCode,
				TransactionID: txn.TransactionID,
			}); err != nil {
				return enums.WebhookFailed, err
			}
			return enums.WebhookProcessed, nil
		default:
			return enums.WebhookIgnored, nil
		}
	})
}

var errUnconfirmed = errors.New("viva transaction not confirmed")

// confirm looks the transaction up at Viva and checks it belongs to the
// order the notification names. Lookup failures other than not found are
// returned so Viva retries the delivery.
func (s *Service) confirm(ctx context.Context, n notification) (*viva.Transaction, error) {
	txn, err := s.transactions.Transaction(ctx, n.EventData.TransactionID)
	if errors.Is(err, viva.ErrTransactionNotFound) {
		return nil, errUnconfirmed
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm viva transaction")
	}
	if txn.OrderCode != n.EventData.OrderCode.String() {
		return nil, errUnconfirmed
	}
	return txn, nil
}

func (s *Service) grant(ctx context.Context, txn *viva.Transaction) (enums.WebhookStatus, error) {
	if strings.TrimSpace(txn.StatusID) != statusFinished {
		return enums.WebhookIgnored, nil
	}
	amount := txn.Amount
	result, err := s.payments.Grant(ctx, payments.GrantInput{
		Provider:      enums.ProviderViva,
		Reference:     txn.OrderCode,
		TransactionID: txn.TransactionID,
		Amount:        &amount,
		ExactAmount:   true,
	})
	if err != nil {
		return enums.WebhookFailed, err
	}
	if result.AlreadyProcessed {
		return enums.WebhookDuplicate, nil
	}
	return enums.WebhookProcessed, nil
}
