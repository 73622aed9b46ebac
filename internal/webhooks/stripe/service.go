package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/webhooks"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

type eventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type paymentsService interface {
	Grant(ctx context.Context, input payments.GrantInput) (*payments.GrantResult, error)
	Reverse(ctx context.Context, input payments.ReverseInput) (*models.Payment, error)
}

type processor interface {
	Process(ctx context.Context, d webhooks.Delivery, handle webhooks.HandlerFunc) (enums.WebhookStatus, error)
}

// Service consumes Stripe checkout webhooks.
type Service struct {
	verifier  eventVerifier
	payments  paymentsService
	processor processor
}

func NewService(verifier eventVerifier, payments paymentsService, processor processor) (*Service, error) {
	if verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	if payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments service required")
	}
	if processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook processor required")
	}
	return &Service{verifier: verifier, payments: payments, processor: processor}, nil
}

// HandleDelivery verifies the Stripe-Signature header, records the event and
// applies checkout completions.
func (s *Service) HandleDelivery(ctx context.Context, signature string, body []byte) (enums.WebhookStatus, error) {
	event, verifyErr := s.verifier.ConstructEvent(body, signature)
	if verifyErr != nil {
		event = unverifiedEvent(body)
	}
	if event.ID == "" {
		return enums.WebhookFailed, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id missing")
	}

	return s.processor.Process(ctx, webhooks.Delivery{
		Provider:       enums.ProviderStripe,
		EventID:        event.ID,
		EventType:      string(event.Type),
		Payload:        body,
		SignatureValid: verifyErr == nil,
	}, func(ctx context.Context) (enums.WebhookStatus, error) {
		return s.apply(ctx, event)
	})
}

func (s *Service) apply(ctx context.Context, event stripe.Event) (enums.WebhookStatus, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		if event.Data == nil {
			return enums.WebhookFailed, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
		}
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return enums.WebhookFailed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return enums.WebhookIgnored, nil
		}
		return s.grant(ctx, &session)
	case stripe.EventTypeChargeRefunded:
		id, err := uuid.Parse(event.GetObjectValue("metadata", "payment_id"))
		if err != nil {
			return enums.WebhookIgnored, nil
		}
		if _, err := s.payments.Reverse(ctx, payments.ReverseInput{Provider: enums.ProviderStripe, PaymentID: &id, TransactionID: event.GetObjectValue("id")}); err != nil {
			return enums.WebhookFailed, err
		}
		return enums.WebhookProcessed, nil
	default:
		return enums.WebhookIgnored, nil
	}
}

func (s *Service) grant(ctx context.Context, session *stripe.CheckoutSession) (enums.WebhookStatus, error) {
	input := payments.GrantInput{
		Provider:      enums.ProviderStripe,
		Reference:     session.ID,
		TransactionID: session.ID,
		Currency:      strings.ToUpper(string(session.Currency)),
	}
	if id, err := uuid.Parse(session.Metadata["payment_id"]); err == nil {
		input.PaymentID = &id
	}
	if session.AmountTotal > 0 {
		amount := decimal.NewFromInt(session.AmountTotal).Shift(-2)
		input.Amount = &amount
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

// unverifiedEvent extracts id and type so a rejected delivery is still logged.
func unverifiedEvent(body []byte) stripe.Event {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" {
		return stripe.Event{ID: "unverified-" + uuid.NewString(), Type: "unknown"}
	}
	return event
}
