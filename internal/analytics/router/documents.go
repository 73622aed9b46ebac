package router

import (
	"context"
	"fmt"

	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
)

type documentUploaded struct{ rowSink }

// Guest uploads spend no credits, so they carry no credit count.
func (h documentUploaded) Handle(ctx context.Context, d outbox.Delivery, payload any) error {
	ev, ok := payload.(*payloads.DocumentUploadedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, d.EventType)
	}
	row, err := h.row(d)
	if err != nil {
		return err
	}
	row.DocumentID = id(ev.DocumentID)
	row.UserID = optionalID(ev.UserID)
	row.ScanType = str(string(ev.ScanType))
	row.CreditType = str(string(ev.ScanType.CreditType()))
	row.Guest = ptr(ev.Guest)
	if !ev.Guest {
		row.Credits = ptr(int64(1))
	}
	return h.insert(h.logg.WithDocumentID(ctx, ev.DocumentID.String()), row)
}

type documentCompleted struct{ rowSink }

func (h documentCompleted) Handle(ctx context.Context, d outbox.Delivery, payload any) error {
	ev, ok := payload.(*payloads.DocumentCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, d.EventType)
	}
	row, err := h.row(d)
	if err != nil {
		return err
	}
	if !ev.CompletedAt.IsZero() {
		row.OccurredAt = ev.CompletedAt.UTC()
	}
	row.DocumentID = id(ev.DocumentID)
	row.UserID = optionalID(ev.UserID)
	row.Guest = ptr(ev.UserID == nil)
	row.SimilarityPercentage = ev.SimilarityPercentage
	row.AIPercentage = ev.AIPercentage
	row.Source = str(ev.Source)
	return h.insert(h.logg.WithDocumentID(ctx, ev.DocumentID.String()), row)
}

type documentFailed struct{ rowSink }

func (h documentFailed) Handle(ctx context.Context, d outbox.Delivery, payload any) error {
	ev, ok := payload.(*payloads.DocumentFailedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", payload, d.EventType)
	}
	row, err := h.row(d)
	if err != nil {
		return err
	}
	row.DocumentID = id(ev.DocumentID)
	row.UserID = optionalID(ev.UserID)
	return h.insert(h.logg.WithDocumentID(ctx, ev.DocumentID.String()), row)
}
