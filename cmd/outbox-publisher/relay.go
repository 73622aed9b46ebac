package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox/registry"
)

// RelayConfig tunes how aggressively the relay drains outbox_events.
type RelayConfig struct {
	Batch          int
	Idle           time.Duration
	MaxBackoff     time.Duration
	AttemptCeiling int
	PublishTimeout time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Batch <= 0 {
		c.Batch = 50
	}
	if c.Idle <= 0 {
		c.Idle = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.Idle {
		c.MaxBackoff = 20 * c.Idle
	}
	if c.AttemptCeiling <= 0 {
		c.AttemptCeiling = 10
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 15 * time.Second
	}
	return c
}

type outboxStore interface {
	Claim(tx *gorm.DB, limit, attemptCeiling int) ([]models.OutboxEvent, error)
	Ack(tx *gorm.DB, id uuid.UUID, at time.Time) error
	Retry(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, attemptCeiling int, at time.Time) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventRouter interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type outcomeRecorder interface {
	Outbox(eventType, outcome string)
}

// Relay moves committed outbox rows onto the domain topic. Rows are claimed
// inside a transaction, so a crash mid-batch leaves them pending.
type Relay struct {
	store   outboxStore
	tx      txRunner
	routes  eventRouter
	sink    Sink
	logg    *logger.Logger
	metrics outcomeRecorder
	cfg     RelayConfig
	now     func() time.Time
}

func NewRelay(store outboxStore, tx txRunner, routes eventRouter, sink Sink, logg *logger.Logger, metrics outcomeRecorder, cfg RelayConfig) (*Relay, error) {
	switch {
	case store == nil:
		return nil, errors.New("relay: outbox store required")
	case tx == nil:
		return nil, errors.New("relay: transaction runner required")
	case routes == nil:
		return nil, errors.New("relay: event registry required")
	case sink == nil:
		return nil, errors.New("relay: sink required")
	case logg == nil:
		return nil, errors.New("relay: logger required")
	}
	return &Relay{
		store:   store,
		tx:      tx,
		routes:  routes,
		sink:    sink,
		logg:    logg,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}, nil
}

// Run drains batches back to back while there is work and naps for the idle
// interval when the table is empty. Failed batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.cfg.Idle
	for {
		n, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "relay batch failed", err)
			wait = min(wait*2, r.cfg.MaxBackoff)
		case n > 0:
			wait = r.cfg.Idle
			if ctx.Err() == nil {
				continue
			}
		default:
			wait = r.cfg.Idle
		}
		if err := nap(ctx, wait+jitter(r.cfg.Idle/2)); err != nil {
			return err
		}
	}
}

// drain settles one claimed batch and returns how many rows it handled.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var handled int
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.cfg.Batch, r.cfg.AttemptCeiling)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		for _, row := range rows {
			if err := r.settle(ctx, tx, row); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	rowCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"event_type":   row.EventType,
		"aggregate_id": row.AggregateID.String(),
		"attempt":      row.AttemptCount + 1,
	})

	resolved, err := r.routes.Resolve(row)
	if err != nil {
		return r.park(rowCtx, tx, row, enums.DeadLetterUnroutable, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	serverID, err := r.sink.Send(sendCtx, resolved.Descriptor.Topic, messageFor(row, resolved))
	cancel()

	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		if err := r.store.Ack(tx, row.ID, r.now()); err != nil {
			return fmt.Errorf("ack %s: %w", row.ID, err)
		}
		r.record(row, "published")
		r.logg.Info(r.logg.WithField(rowCtx, "message_id", serverID), "outbox event published")
		return nil
	case errors.As(err, &permanent):
		return r.park(rowCtx, tx, row, enums.DeadLetterRejected, err)
	case row.AttemptCount+1 >= r.cfg.AttemptCeiling:
		return r.park(rowCtx, tx, row, enums.DeadLetterExhausted, fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err))
	}

	r.logg.Warn(r.logg.WithField(rowCtx, "error", err.Error()), "outbox publish failed, will retry")
	r.record(row, "retried")
	if err := r.store.Retry(tx, row.ID, err); err != nil {
		return fmt.Errorf("retry %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"reason": reason,
		"error":  cause.Error(),
	}), "outbox event dead-lettered")
	r.record(row, string(reason))
	if err := r.store.DeadLetter(tx, row, reason, cause, r.cfg.AttemptCeiling, r.now()); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) record(row models.OutboxEvent, outcome string) {
	if r.metrics != nil {
		r.metrics.Outbox(string(row.EventType), outcome)
	}
}

func nap(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter(span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	return rand.N(span)
}
