package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the fan-out's idempotency marks and metrics.
const ConsumerName = "notification-fanout"

type deliverer interface {
	Deliver(ctx context.Context, n Notice) error
}

// Fanout turns domain events into notices for users and admins.
type Fanout struct {
	dispatcher deliverer
}

func NewFanout(dispatcher deliverer) (*Fanout, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	return &Fanout{dispatcher: dispatcher}, nil
}

// Handle delivers every notice the event produces. A failed in-app write
// fails the whole event; on redelivery the dispatcher skips the channels
// that already went out.
func (f *Fanout) Handle(ctx context.Context, d outbox.Delivery) error {
	if !handledEvents[d.EventType] {
		return inbox.ErrSkip
	}
	notices, err := buildNotices(d.EventType, d.Data)
	if err != nil {
		return inbox.Permanent(fmt.Errorf("decode %s payload: %w", d.EventType, err))
	}
	for i, n := range notices {
		n.Key = d.EventID.String() + ":" + strconv.Itoa(i)
		if err := f.dispatcher.Deliver(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

var handledEvents = map[enums.OutboxEventType]bool{
	enums.EventCreditsPurchased:  true,
	enums.EventDocumentCompleted: true,
	enums.EventDocumentFailed:    true,
	enums.EventTicketReplied:     true,
	enums.EventRefundDecided:     true,
	enums.EventPaymentReversed:   true,
}

func buildNotices(eventType enums.OutboxEventType, data json.RawMessage) ([]Notice, error) {
	switch eventType {
	case enums.EventCreditsPurchased:
		var p payloads.CreditsPurchasedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		user := p.UserID
		return []Notice{
			{
				Type:    enums.NotificationCreditsPurchased,
				UserID:  &user,
				Title:   "Credits added",
				Message: fmt.Sprintf("%d %s added to your account. Your balance is now %d.", p.Credits, creditLabel(p.CreditType, p.Credits), p.NewBalance),
				Link:    "/credits",
				CTAText: "View credits",
			},
			{
				Type:    enums.NotificationPaymentReceived,
				Admin:   true,
				Title:   "Payment received",
				Message: fmt.Sprintf("%s %s via %s for %d %s.", p.Amount, p.Currency, p.Provider, p.Credits, creditLabel(p.CreditType, p.Credits)),
				Link:    "/admin/payments/" + p.PaymentID.String(),
			},
		}, nil

	case enums.EventDocumentCompleted:
		var p payloads.DocumentCompletedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		n := Notice{
			Type:         enums.NotificationDocumentCompleted,
			UserID:       p.UserID,
			Title:        "Your report is ready",
			Message:      completedMessage(p),
			Link:         "/documents/" + p.DocumentID.String(),
			EmailSubject: "Your report for " + p.FileName + " is ready",
			CTAText:      "View report",
		}
		if p.UserID == nil && p.GuestEmail != nil {
			n.GuestEmail = *p.GuestEmail
			n.Link = ""
		}
		return []Notice{n}, nil

	case enums.EventDocumentFailed:
		var p payloads.DocumentFailedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.UserID == nil {
			return nil, nil
		}
		return []Notice{{
			Type:      enums.NotificationSystem,
			UserID:    p.UserID,
			Title:     "Document could not be processed",
			Message:   fmt.Sprintf("%s could not be processed. You can request a refund from the document page.", p.FileName),
			Link:      "/documents/" + p.DocumentID.String(),
			InAppOnly: true,
		}}, nil

	case enums.EventTicketReplied:
		var p payloads.TicketRepliedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		user := p.UserID
		return []Notice{{
			Type:         enums.NotificationTicketReplied,
			UserID:       &user,
			Title:        "New reply on your ticket",
			Message:      fmt.Sprintf("Support replied to %q: %s", p.Subject, p.Preview),
			Link:         "/support/" + p.TicketID.String(),
			EmailSubject: "Re: " + p.Subject,
			CTAText:      "Open ticket",
		}}, nil

	case enums.EventRefundDecided:
		var p payloads.RefundDecidedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		user := p.UserID
		n := Notice{
			Type:   enums.NotificationRefundDecided,
			UserID: &user,
			Link:   "/documents/" + p.DocumentID.String(),
		}
		if p.Status == enums.RefundApproved {
			n.Title = "Refund approved"
			n.Message = fmt.Sprintf("Your refund was approved and %d credit(s) were returned to your account.", p.Credits)
		} else {
			n.Title = "Refund declined"
			n.Message = "Your refund request was declined."
		}
		if note := strings.TrimSpace(p.Note); note != "" {
			n.Message += " Note: " + note
		}
		return []Notice{n}, nil

	case enums.EventPaymentReversed:
		var p payloads.PaymentReversedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return []Notice{{
			Type:    enums.NotificationSystem,
			Admin:   true,
			Title:   "Payment reversed",
			Message: fmt.Sprintf("%s reversed payment %s for user %s. Credits were not clawed back.", p.Provider, p.Reference, p.UserID),
			Link:    "/admin/payments/" + p.PaymentID.String(),
		}}, nil
	}
	return nil, nil
}

func creditLabel(t enums.CreditType, n int) string {
	label := "scan credit"
	if t == enums.CreditTypeSimilarity {
		label = "similarity credit"
	}
	if n != 1 {
		label += "s"
	}
	return label
}

func completedMessage(p payloads.DocumentCompletedEvent) string {
	var parts []string
	if p.SimilarityPercentage != nil {
		parts = append(parts, fmt.Sprintf("similarity %.0f%%", *p.SimilarityPercentage))
	}
	if p.AIPercentage != nil {
		parts = append(parts, fmt.Sprintf("AI %.0f%%", *p.AIPercentage))
	}
	msg := p.FileName + " has been checked."
	if len(parts) > 0 {
		msg += " Result: " + strings.Join(parts, ", ") + "."
	}
	return msg
}
