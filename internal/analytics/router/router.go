// Package router maps domain events onto scan_events rows.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/internal/analytics/types"
	analyticswriter "github.com/simcheck/simcheck-backend/internal/analytics/writer"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the analytics idempotency marks and metrics.
const ConsumerName = "analytics"

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertScanEvent(ctx context.Context, row types.ScanEventRow) error
}

// Handler fills a row from one decoded event payload.
type Handler interface {
	Handle(ctx context.Context, d outbox.Delivery, payload any) error
}

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler Handler
}

func decoder[T any]() func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Router dispatches deliveries to the handler registered for their event type.
type Router struct {
	routes map[enums.OutboxEventType]route
}

// NewRouter wires the default handlers. Overrides replace the handler for an
// already routed event type and are ignored otherwise.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	sink := rowSink{writer: writer, logg: logg}

	routes := map[enums.OutboxEventType]route{
		enums.EventCreditsPurchased:  {decoder[payloads.CreditsPurchasedEvent](), creditsPurchased{sink}},
		enums.EventPaymentReversed:   {decoder[payloads.PaymentReversedEvent](), paymentReversed{sink}},
		enums.EventDocumentUploaded:  {decoder[payloads.DocumentUploadedEvent](), documentUploaded{sink}},
		enums.EventDocumentCompleted: {decoder[payloads.DocumentCompletedEvent](), documentCompleted{sink}},
		enums.EventDocumentFailed:    {decoder[payloads.DocumentFailedEvent](), documentFailed{sink}},
		enums.EventRefundDecided:     {decoder[payloads.RefundDecidedEvent](), refundDecided{sink}},
	}
	for event, h := range overrides {
		if r, ok := routes[event]; ok && h != nil {
			r.handler = h
			routes[event] = r
		}
	}
	return &Router{routes: routes}, nil
}

// Handle skips untracked event types. A payload that cannot be decoded is
// dropped rather than retried.
func (r *Router) Handle(ctx context.Context, d outbox.Delivery) error {
	rt, ok := r.routes[d.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", inbox.ErrSkip, d.EventType)
	}
	if len(d.Data) == 0 {
		return inbox.Permanent(fmt.Errorf("empty payload for %s", d.EventType))
	}
	payload, err := rt.decode(d.Data)
	if err != nil {
		return inbox.Permanent(fmt.Errorf("decode %s payload: %w", d.EventType, err))
	}
	return rt.handler.Handle(ctx, d, payload)
}

type rowSink struct {
	writer Writer
	logg   *logger.Logger
}

// row starts a scan_events row carrying the delivery identity and raw payload.
func (rowSink) row(d outbox.Delivery) (types.ScanEventRow, error) {
	payloadJSON, err := analyticswriter.EncodeJSON(d.Data)
	if err != nil {
		return types.ScanEventRow{}, inbox.Permanent(fmt.Errorf("encode payload json: %w", err))
	}
	return types.ScanEventRow{
		EventID:    d.EventID.String(),
		EventType:  string(d.EventType),
		OccurredAt: d.OccurredAt.UTC(),
		Payload:    payloadJSON,
	}, nil
}

func (s rowSink) insert(ctx context.Context, row types.ScanEventRow) error {
	if err := s.writer.InsertScanEvent(ctx, row); err != nil {
		s.logg.Error(ctx, "analytics.insert_failed", err)
		return err
	}
	s.logg.Debug(ctx, "analytics.row_inserted")
	return nil
}

func str(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func id(v uuid.UUID) *string {
	if v == uuid.Nil {
		return nil
	}
	return str(v.String())
}

func optionalID(v *uuid.UUID) *string {
	if v == nil {
		return nil
	}
	return id(*v)
}

func ptr[T any](v T) *T { return &v }
