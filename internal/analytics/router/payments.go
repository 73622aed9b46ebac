package router

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
)

type creditsPurchased struct{ rowSink }

func (h creditsPurchased) Handle(ctx context.Context, d outbox.Delivery, payload any) error {
	ev, ok := payload.(*payloads.CreditsPurchasedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, d.EventType)
	}
	ctx = h.logg.WithFields(ctx, map[string]any{"payment_id": ev.PaymentID.String(), "provider": string(ev.Provider)})

	cents, err := amountCents(ev.Amount)
	if err != nil {
		return inbox.Permanent(err)
	}
	row, err := h.row(d)
	if err != nil {
		return err
	}
	row.PaymentID = id(ev.PaymentID)
	row.UserID = id(ev.UserID)
	row.Provider = str(string(ev.Provider))
	row.CreditType = str(string(ev.CreditType))
	row.Credits = ptr(int64(ev.Credits))
	row.AmountCents = ptr(cents)
	row.Currency = str(ev.Currency)
	return h.insert(ctx, row)
}

type paymentReversed struct{ rowSink }

func (h paymentReversed) Handle(ctx context.Context, d outbox.Delivery, payload any) error {
	ev, ok := payload.(*payloads.PaymentReversedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, d.EventType)
	}
	row, err := h.row(d)
	if err != nil {
		return err
	}
	row.PaymentID = id(ev.PaymentID)
	row.UserID = id(ev.UserID)
	row.Provider = str(string(ev.Provider))
	return h.insert(h.logg.WithField(ctx, "payment_id", ev.PaymentID.String()), row)
}

type refundDecided struct{ rowSink }

// Rejections are written with zero credits so the approval rate can be charted.
func (h refundDecided) Handle(ctx context.Context, d outbox.Delivery, payload any) error {
	ev, ok := payload.(*payloads.RefundDecidedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, d.EventType)
	}
	row, err := h.row(d)
	if err != nil {
		return err
	}
	row.UserID = id(ev.UserID)
	row.DocumentID = id(ev.DocumentID)
	var credits int64
	if ev.Status == enums.RefundApproved {
		credits = int64(ev.Credits)
	}
	row.Credits = ptr(credits)
	row.Source = str(string(ev.Status))
	return h.insert(h.logg.WithField(ctx, "refund_id", ev.RefundID.String()), row)
}

// amountCents converts a major-unit amount such as "44.99" to cents.
func amountCents(amount string) (int64, error) {
	if amount == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
