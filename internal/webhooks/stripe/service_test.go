package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/webhooks"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

type fakeVerifier struct {
	err error
}

func (f fakeVerifier) ConstructEvent(payload []byte, _ string) (stripe.Event, error) {
	if f.err != nil {
		return stripe.Event{}, f.err
	}
	var event stripe.Event
	err := json.Unmarshal(payload, &event)
	return event, err
}

type fakePayments struct {
	grants []payments.GrantInput
}

func (f *fakePayments) Grant(_ context.Context, input payments.GrantInput) (*payments.GrantResult, error) {
	f.grants = append(f.grants, input)
	return &payments.GrantResult{}, nil
}

func (f *fakePayments) Reverse(context.Context, payments.ReverseInput) (*models.Payment, error) {
	return &models.Payment{}, nil
}

type passthroughProcessor struct {
	deliveries []webhooks.Delivery
}

func (p *passthroughProcessor) Process(ctx context.Context, d webhooks.Delivery, handle webhooks.HandlerFunc) (enums.WebhookStatus, error) {
	p.deliveries = append(p.deliveries, d)
	if !d.SignatureValid {
		return enums.WebhookInvalidSignature, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return handle(ctx)
}

func sessionEvent(paymentStatus string, paymentID uuid.UUID) []byte {
	return []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","object":"checkout.session","payment_status":"` + paymentStatus + `","amount_total":4499,"currency":"eur","metadata":{"payment_id":"` + paymentID.String() + `"}}}}`)
}

func TestPaidSessionGrants(t *testing.T) {
	pay := &fakePayments{}
	svc, err := NewService(fakeVerifier{}, pay, &passthroughProcessor{})
	if err != nil {
		t.Fatal(err)
	}
	paymentID := uuid.New()

	status, err := svc.HandleDelivery(context.Background(), "sig", sessionEvent("paid", paymentID))
	if err != nil || status != enums.WebhookProcessed {
		t.Fatalf("unexpected result %v %v", status, err)
	}
	if len(pay.grants) != 1 {
		t.Fatalf("expected one grant, got %d", len(pay.grants))
	}
	g := pay.grants[0]
	if g.TransactionID != "cs_test_1" || *g.PaymentID != paymentID || g.Amount.StringFixed(2) != "44.99" || g.Currency != "EUR" {
		t.Fatalf("unexpected grant %+v", g)
	}
}

func TestUnpaidSessionIgnored(t *testing.T) {
	pay := &fakePayments{}
	svc, _ := NewService(fakeVerifier{}, pay, &passthroughProcessor{})

	status, err := svc.HandleDelivery(context.Background(), "sig", sessionEvent("unpaid", uuid.New()))
	if err != nil || status != enums.WebhookIgnored {
		t.Fatalf("unexpected result %v %v", status, err)
	}
	if len(pay.grants) != 0 {
		t.Fatal("grant must not run")
	}
}

func TestBadSignatureStillRecorded(t *testing.T) {
	proc := &passthroughProcessor{}
	svc, _ := NewService(fakeVerifier{err: errors.New("bad sig")}, &fakePayments{}, proc)

	_, err := svc.HandleDelivery(context.Background(), "sig", sessionEvent("paid", uuid.New()))
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(proc.deliveries) != 1 || proc.deliveries[0].EventID != "evt_1" || proc.deliveries[0].SignatureValid {
		t.Fatalf("unexpected deliveries %+v", proc.deliveries)
	}
}
