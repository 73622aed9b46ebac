// Package webhooks runs payment provider deliveries through the shared
// record, guard and finish sequence.
package webhooks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type webhookLog interface {
	RecordWebhook(ctx context.Context, record payments.WebhookRecord) (*models.WebhookEvent, bool, error)
	FinishWebhook(ctx context.Context, id uuid.UUID, status enums.WebhookStatus, cause error) error
}

type recorder interface {
	Webhook(provider, result string)
}

type deliveryGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Delivery is one received provider event.
type Delivery struct {
	Provider       enums.PaymentProvider
	EventID        string
	EventType      string
	Payload        json.RawMessage
	SignatureValid bool
}

// HandlerFunc applies a verified delivery and reports the resulting status.
type HandlerFunc func(ctx context.Context) (enums.WebhookStatus, error)

// Processor persists every delivery, suppresses duplicates and records outcomes.
type Processor struct {
	log     webhookLog
	guard   deliveryGuard
	metrics recorder
	logg    *logger.Logger
}

// NewProcessor wires the processor. Guard and metrics may be nil.
func NewProcessor(log webhookLog, guard deliveryGuard, metrics recorder, logg *logger.Logger) (*Processor, error) {
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook log required")
	}
	return &Processor{log: log, guard: guard, metrics: metrics, logg: logg}, nil
}

// Process records the delivery and, when it is new and signed, runs handle.
// Duplicates return nil so the provider stops retrying. Handler failures are
// returned so the provider redelivers.
func (p *Processor) Process(ctx context.Context, d Delivery, handle HandlerFunc) (enums.WebhookStatus, error) {
	if p.logg != nil {
		ctx = p.logg.WithFields(ctx, map[string]any{
			"provider":   d.Provider.String(),
			"event_id":   d.EventID,
			"event_type": d.EventType,
		})
	}
	event, duplicate, err := p.log.RecordWebhook(ctx, payments.WebhookRecord{
		Provider:       d.Provider,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Payload:        d.Payload,
		SignatureValid: d.SignatureValid,
	})
	if err != nil {
		p.record(d.Provider, "error")
		return enums.WebhookFailed, err
	}
	if !d.SignatureValid {
		p.record(d.Provider, string(enums.WebhookInvalidSignature))
		return enums.WebhookInvalidSignature, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	if duplicate {
		p.record(d.Provider, string(enums.WebhookDuplicate))
		p.info(ctx, "webhook.duplicate")
		return enums.WebhookDuplicate, nil
	}

	guardKey := d.Provider.String() + ":" + d.EventID
	if p.guard != nil {
		fresh, err := p.guard.Claim(ctx, guardKey)
		switch {
		case err != nil:
			if p.logg != nil {
				p.logg.Warn(ctx, "webhook.guard_unavailable")
			}
		case !fresh:
			p.record(d.Provider, string(enums.WebhookDuplicate))
			p.finish(ctx, event.ID, enums.WebhookDuplicate, nil)
			return enums.WebhookDuplicate, nil
		}
	}

	status, err := handle(ctx)
	if err != nil {
		if p.guard != nil {
			if delErr := p.guard.Release(ctx, guardKey); delErr != nil && p.logg != nil {
				p.logg.Error(ctx, "webhook.guard_release_failed", delErr)
			}
		}
		p.finish(ctx, event.ID, enums.WebhookFailed, err)
		p.record(d.Provider, string(enums.WebhookFailed))
		if p.logg != nil {
			p.logg.Error(ctx, "webhook.failed", err)
		}
		return enums.WebhookFailed, err
	}
	p.finish(ctx, event.ID, status, nil)
	p.record(d.Provider, string(status))
	p.info(ctx, "webhook."+string(status))
	return status, nil
}

func (p *Processor) finish(ctx context.Context, id uuid.UUID, status enums.WebhookStatus, cause error) {
	if err := p.log.FinishWebhook(ctx, id, status, cause); err != nil && p.logg != nil {
		p.logg.Error(ctx, "webhook.finish_failed", err)
	}
}

func (p *Processor) record(provider enums.PaymentProvider, result string) {
	if p.metrics != nil {
		p.metrics.Webhook(provider.String(), result)
	}
}

func (p *Processor) info(ctx context.Context, msg string) {
	if p.logg != nil {
		p.logg.Info(ctx, msg)
	}
}
