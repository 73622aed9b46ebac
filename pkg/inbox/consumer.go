package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
)

// ErrSkip tells the consumer the event is of no interest. It is acked.
var ErrSkip = errors.New("inbox: event not handled")

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as one a redelivery cannot fix. The event is acked
// and stays claimed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Handler applies one delivery.
type Handler interface {
	Handle(ctx context.Context, d outbox.Delivery) error
}

type HandlerFunc func(ctx context.Context, d outbox.Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d outbox.Delivery) error { return f(ctx, d) }

type claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type outcomeRecorder interface {
	Consumed(consumer, eventType, outcome string)
}

// Outcomes reported to the recorder.
const (
	OutcomeHandled   = "handled"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeDropped   = "dropped"
	OutcomeRetry     = "retry"
)

type Options struct {
	Name    string
	Marks   claimer
	Handler Handler
	Logger  *logger.Logger
	Metrics outcomeRecorder
}

// Consumer reads deliveries from a subscription and runs the handler once
// per event ID.
type Consumer struct {
	name    string
	marks   claimer
	handler Handler
	logg    *logger.Logger
	metrics outcomeRecorder
}

func New(opts Options) (*Consumer, error) {
	switch {
	case strings.TrimSpace(opts.Name) == "":
		return nil, errors.New("inbox: consumer name is required")
	case opts.Marks == nil:
		return nil, errors.New("inbox: marker is required")
	case opts.Handler == nil:
		return nil, errors.New("inbox: handler is required")
	case opts.Logger == nil:
		return nil, errors.New("inbox: logger is required")
	}
	return &Consumer{
		name:    opts.Name,
		marks:   opts.Marks,
		handler: opts.Handler,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Run blocks until ctx ends or the subscription fails.
func (c *Consumer) Run(ctx context.Context, sub *gcppubsub.Subscriber) error {
	if sub == nil {
		return fmt.Errorf("inbox: %s has no subscription", c.name)
	}
	return sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if c.Process(ctx, msg.ID, msg.Data, msg.Attributes) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Process handles one message and reports whether it should be acked.
func (c *Consumer) Process(ctx context.Context, messageID string, body []byte, attrs map[string]string) bool {
	ctx = c.logg.WithFields(ctx, map[string]any{"consumer": c.name, "message_id": messageID})

	d, err := outbox.DecodeDelivery(messageID, body, attrs)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "inbox.undecodable")
		c.record(attrs["event_type"], OutcomeDropped)
		return true
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"event_id":   d.EventID.String(),
		"event_type": string(d.EventType),
	})
	eventType := string(d.EventType)

	key := c.name + ":" + d.EventID.String()
	fresh, err := c.marks.Claim(ctx, key)
	if err != nil {
		c.logg.Error(ctx, "inbox.claim_failed", err)
		c.record(eventType, OutcomeRetry)
		return false
	}
	if !fresh {
		c.logg.Debug(ctx, "inbox.duplicate")
		c.record(eventType, OutcomeDuplicate)
		return true
	}

	err = c.handler.Handle(ctx, d)
	switch {
	case err == nil:
		c.record(eventType, OutcomeHandled)
		return true
	case errors.Is(err, ErrSkip):
		c.record(eventType, OutcomeSkipped)
		return true
	case isPermanent(err):
		c.logg.Error(ctx, "inbox.dropped", err)
		c.record(eventType, OutcomeDropped)
		return true
	}

	c.logg.Error(ctx, "inbox.handler_failed", err)
	if relErr := c.marks.Release(ctx, key); relErr != nil {
		c.logg.Error(ctx, "inbox.release_failed", relErr)
	}
	c.record(eventType, OutcomeRetry)
	return false
}

func (c *Consumer) record(eventType, outcome string) {
	if c.metrics != nil {
		c.metrics.Consumed(c.name, eventType, outcome)
	}
}
