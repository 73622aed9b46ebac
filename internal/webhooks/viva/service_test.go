package vivawebhook

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/webhooks"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/viva"
)

type fakePayments struct {
	grants   []payments.GrantInput
	reverses []payments.ReverseInput
}

func (f *fakePayments) Grant(_ context.Context, input payments.GrantInput) (*payments.GrantResult, error) {
	f.grants = append(f.grants, input)
	return &payments.GrantResult{}, nil
}

func (f *fakePayments) Reverse(_ context.Context, input payments.ReverseInput) (*models.Payment, error) {
	f.reverses = append(f.reverses, input)
	return &models.Payment{}, nil
}

type fakeTransactions struct {
	byID  map[string]*viva.Transaction
	err   error
	calls int
}

func (f *fakeTransactions) Transaction(_ context.Context, id string) (*viva.Transaction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	txn, ok := f.byID[id]
	if !ok {
		return nil, viva.ErrTransactionNotFound
	}
	return txn, nil
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

func newService(t *testing.T, txns ...*viva.Transaction) (*Service, *fakePayments, *passthroughProcessor, *fakeTransactions) {
	t.Helper()
	pay := &fakePayments{}
	proc := &passthroughProcessor{}
	lookup := &fakeTransactions{byID: map[string]*viva.Transaction{}}
	for _, txn := range txns {
		lookup.byID[txn.TransactionID] = txn
	}
	svc, err := NewService(pay, proc, lookup, "verify-me")
	if err != nil {
		t.Fatal(err)
	}
	return svc, pay, proc, lookup
}

func TestPaymentCreatedGrantsConfirmedAmount(t *testing.T) {
	svc, pay, proc, _ := newService(t, &viva.Transaction{
		TransactionID: "b1",
		OrderCode:     "1272214778972604",
		StatusID:      "F",
		Amount:        decimal.RequireFromString("44.99"),
	})
	body := []byte(`{"EventTypeId":1796,"MessageId":"msg-1","EventData":{"TransactionId":"b1","OrderCode":1272214778972604,"StatusId":"F","Amount":0.01,"CurrencyCode":"978"}}`)

	status, err := svc.HandleDelivery(context.Background(), body)
	if err != nil || status != enums.WebhookProcessed {
		t.Fatalf("unexpected result %v %v", status, err)
	}
	if len(pay.grants) != 1 {
		t.Fatalf("expected one grant, got %d", len(pay.grants))
	}
	g := pay.grants[0]
	if g.Reference != "1272214778972604" || g.TransactionID != "b1" || g.Amount.StringFixed(2) != "44.99" || !g.ExactAmount {
		t.Fatalf("unexpected grant %+v", g)
	}
	if proc.deliveries[0].EventID != "msg-1" || proc.deliveries[0].EventType != "1796" || !proc.deliveries[0].SignatureValid {
		t.Fatalf("unexpected delivery %+v", proc.deliveries[0])
	}
}

func TestForgedPaymentRejected(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "unknown transaction", body: `{"EventTypeId":1796,"EventData":{"TransactionId":"made-up","OrderCode":77,"StatusId":"F","Amount":44.99}}`},
		{name: "order code of another payment", body: `{"EventTypeId":1796,"EventData":{"TransactionId":"b1","OrderCode":78,"StatusId":"F","Amount":44.99}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, pay, proc, _ := newService(t, &viva.Transaction{TransactionID: "b1", OrderCode: "77", StatusID: "F", Amount: decimal.NewFromInt(5)})

			status, err := svc.HandleDelivery(context.Background(), []byte(tc.body))
			if status != enums.WebhookInvalidSignature || pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
				t.Fatalf("expected rejection, got %v %v", status, err)
			}
			if len(pay.grants) != 0 {
				t.Fatal("grant must not run")
			}
			if proc.deliveries[0].SignatureValid {
				t.Fatal("delivery must be recorded as unverified")
			}
		})
	}
}

func TestUnfinishedPaymentIgnored(t *testing.T) {
	svc, pay, _, _ := newService(t, &viva.Transaction{TransactionID: "b2", OrderCode: "77", StatusID: "E"})
	body := []byte(`{"EventTypeId":1796,"EventData":{"TransactionId":"b2","OrderCode":"77","StatusId":"F"}}`)

	status, err := svc.HandleDelivery(context.Background(), body)
	if err != nil || status != enums.WebhookIgnored {
		t.Fatalf("unexpected result %v %v", status, err)
	}
	if len(pay.grants) != 0 {
		t.Fatal("grant must not run")
	}
}

func TestLookupFailureIsRetried(t *testing.T) {
	svc, pay, proc, lookup := newService(t)
	lookup.err = errors.New("viva unavailable")
	body := []byte(`{"EventTypeId":1796,"EventData":{"TransactionId":"b3","OrderCode":77,"StatusId":"F"}}`)

	_, err := svc.HandleDelivery(context.Background(), body)
	if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(proc.deliveries) != 0 || len(pay.grants) != 0 {
		t.Fatal("nothing may be recorded before the transaction is confirmed")
	}
}

func TestReversalMarksPayment(t *testing.T) {
	svc, pay, proc, _ := newService(t, &viva.Transaction{TransactionID: "r1", OrderCode: "77", StatusID: "F"})
	body := []byte(`{"EventTypeId":1797,"EventData":{"TransactionId":"r1","OrderCode":77}}`)

	status, err := svc.HandleDelivery(context.Background(), body)
	if err != nil || status != enums.WebhookProcessed {
		t.Fatalf("unexpected result %v %v", status, err)
	}
	if len(pay.reverses) != 1 || pay.reverses[0].Reference != "77" {
		t.Fatalf("unexpected reversals %+v", pay.reverses)
	}
	if proc.deliveries[0].EventID != "r1:1797" {
		t.Fatalf("expected derived event id, got %q", proc.deliveries[0].EventID)
	}
}

func TestOtherEventsSkipLookup(t *testing.T) {
	svc, _, _, lookup := newService(t)
	body := []byte(`{"EventTypeId":1798,"EventData":{"TransactionId":"x","OrderCode":1}}`)

	status, err := svc.HandleDelivery(context.Background(), body)
	if err != nil || status != enums.WebhookIgnored {
		t.Fatalf("unexpected result %v %v", status, err)
	}
	if lookup.calls != 0 {
		t.Fatal("unhandled events need no lookup")
	}
}

func TestInvalidPayloadRejected(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.HandleDelivery(context.Background(), []byte(`{"EventTypeId":"x"}`))
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if svc.VerificationKey() != "verify-me" {
		t.Fatal("verification key not echoed")
	}
}
