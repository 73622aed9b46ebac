package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
)

type memStore struct {
	keys   map[string]time.Duration
	setErr error
}

func newMemStore() *memStore { return &memStore{keys: map[string]time.Duration{}} }

func (m *memStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "sc:idempotency:" + scope + ":" + id
}

type tally map[string]int

func (t tally) Consumed(consumer, eventType, outcome string) { t[consumer+"/"+eventType+"/"+outcome]++ }

func body(t *testing.T, eventID uuid.UUID, data string) []byte {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 4, 2, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func attrs(eventType enums.OutboxEventType) map[string]string {
	return map[string]string{"event_type": string(eventType), "aggregate_type": "document", "aggregate_id": "abc"}
}

func newConsumer(t *testing.T, store *memStore, h Handler, metrics tally) *Consumer {
	t.Helper()
	marks, err := NewMarker(store, time.Hour, "evt:processed")
	require.NoError(t, err)
	c, err := New(Options{
		Name:    "analytics",
		Marks:   marks,
		Handler: h,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics: metrics,
	})
	require.NoError(t, err)
	return c
}

func TestMarkerClaimsOnce(t *testing.T) {
	store := newMemStore()
	m, err := NewMarker(store, 2*time.Hour, "webhook")
	require.NoError(t, err)

	ok, err := m.Claim(context.Background(), "paddle:evt_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2*time.Hour, store.keys["sc:idempotency:webhook:paddle:evt_1"])

	ok, err = m.Claim(context.Background(), "paddle:evt_1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Release(context.Background(), "paddle:evt_1"))
	ok, err = m.Claim(context.Background(), "paddle:evt_1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.Claim(context.Background(), "")
	require.Error(t, err)
}

func TestNewMarkerValidates(t *testing.T) {
	_, err := NewMarker(nil, time.Hour, "x")
	require.Error(t, err)
	_, err = NewMarker(newMemStore(), -time.Second, "x")
	require.Error(t, err)
	_, err = NewMarker(newMemStore(), time.Hour, " ")
	require.Error(t, err)
}

func TestProcessRunsHandlerOncePerEvent(t *testing.T) {
	var got []outbox.Delivery
	metrics := tally{}
	c := newConsumer(t, newMemStore(), HandlerFunc(func(_ context.Context, d outbox.Delivery) error {
		got = append(got, d)
		return nil
	}), metrics)

	id := uuid.New()
	msg := body(t, id, `{"document_id":"abc"}`)
	require.True(t, c.Process(context.Background(), "m1", msg, attrs(enums.EventDocumentUploaded)))
	require.True(t, c.Process(context.Background(), "m2", msg, attrs(enums.EventDocumentUploaded)))

	require.Len(t, got, 1)
	require.Equal(t, id, got[0].EventID)
	require.Equal(t, enums.AggregateDocument, got[0].AggregateType)
	require.Equal(t, time.UTC, got[0].OccurredAt.Location())
	require.JSONEq(t, `{"document_id":"abc"}`, string(got[0].Data))
	require.Equal(t, 1, metrics["analytics/document_uploaded/handled"])
	require.Equal(t, 1, metrics["analytics/document_uploaded/duplicate"])
}

func TestProcessReleasesClaimOnTransientFailure(t *testing.T) {
	store := newMemStore()
	calls := 0
	c := newConsumer(t, store, HandlerFunc(func(context.Context, outbox.Delivery) error {
		calls++
		if calls == 1 {
			return errors.New("bigquery unavailable")
		}
		return nil
	}), tally{})

	msg := body(t, uuid.New(), `{}`)
	require.False(t, c.Process(context.Background(), "m1", msg, attrs(enums.EventDocumentFailed)))
	require.Empty(t, store.keys)
	require.True(t, c.Process(context.Background(), "m1", msg, attrs(enums.EventDocumentFailed)))
	require.Equal(t, 2, calls)
}

func TestProcessAcksSkippedAndPermanent(t *testing.T) {
	store := newMemStore()
	metrics := tally{}
	c := newConsumer(t, store, HandlerFunc(func(_ context.Context, d outbox.Delivery) error {
		if d.EventType == enums.EventTicketReplied {
			return ErrSkip
		}
		return Permanent(errors.New("bad amount"))
	}), metrics)

	require.True(t, c.Process(context.Background(), "m1", body(t, uuid.New(), `{}`), attrs(enums.EventTicketReplied)))
	require.True(t, c.Process(context.Background(), "m2", body(t, uuid.New(), `{}`), attrs(enums.EventCreditsPurchased)))
	require.Len(t, store.keys, 2)
	require.Equal(t, 1, metrics["analytics/ticket_replied/skipped"])
	require.Equal(t, 1, metrics["analytics/credits_purchased/dropped"])
}

func TestProcessDropsUndecodableAndRetriesStoreErrors(t *testing.T) {
	store := newMemStore()
	called := false
	c := newConsumer(t, store, HandlerFunc(func(context.Context, outbox.Delivery) error {
		called = true
		return nil
	}), tally{})

	require.True(t, c.Process(context.Background(), "m1", []byte("{"), attrs(enums.EventDocumentUploaded)))
	require.True(t, c.Process(context.Background(), "m2", body(t, uuid.New(), `{}`), map[string]string{"event_type": "order_created"}))
	require.True(t, c.Process(context.Background(), "m3", nil, attrs(enums.EventDocumentUploaded)))
	require.False(t, called)

	store.setErr = errors.New("redis down")
	require.False(t, c.Process(context.Background(), "m4", body(t, uuid.New(), `{}`), attrs(enums.EventDocumentUploaded)))
	require.False(t, called)
}
