package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/outbox/payloads"
	"github.com/simcheck/simcheck-backend/pkg/outbox/registry"
)

const testTopic = "simcheck-domain-events"

type scriptedSink struct {
	failures map[uuid.UUID]error
	sent     []*gcppubsub.Message
	topics   []string
}

func (s *scriptedSink) Send(_ context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	id, _ := uuid.Parse(msg.Attributes["aggregate_id"])
	if err, ok := s.failures[id]; ok {
		return "", err
	}
	s.sent = append(s.sent, msg)
	s.topics = append(s.topics, topic)
	return "msg-" + id.String()[:8], nil
}

type outcomeCounter map[string]int

func (c outcomeCounter) Outbox(_ string, outcome string) { c[outcome]++ }

type relayHarness struct {
	t      *testing.T
	client *db.Client
	sink   *scriptedSink
	counts outcomeCounter
	relay  *Relay
}

func newRelayHarness(t *testing.T, ceiling int) *relayHarness {
	t.Helper()
	client := dbtest.Client(t)
	routes, err := registry.NewEventRegistry(config.PubSubConfig{DomainTopic: testTopic})
	require.NoError(t, err)
	h := &relayHarness{
		t:      t,
		client: client,
		sink:   &scriptedSink{failures: map[uuid.UUID]error{}},
		counts: outcomeCounter{},
	}
	h.relay, err = NewRelay(
		outbox.NewRepository(client.DB()),
		client,
		routes,
		h.sink,
		logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		h.counts,
		RelayConfig{Batch: 10, Idle: time.Millisecond, AttemptCeiling: ceiling},
	)
	require.NoError(t, err)
	return h
}

func (h *relayHarness) emitUpload() uuid.UUID {
	h.t.Helper()
	docID := uuid.New()
	emitter := outbox.NewService(outbox.NewRepository(h.client.DB()), nil)
	require.NoError(h.t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return emitter.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentUploaded,
			AggregateType: enums.AggregateDocument,
			AggregateID:   docID,
			Data:          payloads.DocumentUploadedEvent{DocumentID: docID, FileName: "thesis.docx", ScanType: enums.ScanTypeFull},
		})
	}))
	return docID
}

func (h *relayHarness) row(aggregateID uuid.UUID) models.OutboxEvent {
	h.t.Helper()
	var row models.OutboxEvent
	require.NoError(h.t, h.client.DB().First(&row, "aggregate_id = ?", aggregateID).Error)
	return row
}

func (h *relayHarness) deadLetters() []models.OutboxDeadLetter {
	h.t.Helper()
	var rows []models.OutboxDeadLetter
	require.NoError(h.t, h.client.DB().Find(&rows).Error)
	return rows
}

func TestDrainPublishesAndRetries(t *testing.T) {
	h := newRelayHarness(t, 5)
	ok := h.emitUpload()
	flaky := h.emitUpload()
	h.sink.failures[flaky] = errors.New("deadline exceeded")

	n, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NotNil(t, h.row(ok).PublishedAt)
	pending := h.row(flaky)
	require.Nil(t, pending.PublishedAt)
	require.Equal(t, 1, pending.AttemptCount)
	require.Equal(t, "deadline exceeded", *pending.LastError)

	require.Len(t, h.sink.sent, 1)
	msg := h.sink.sent[0]
	require.Equal(t, testTopic, h.sink.topics[0])
	require.Equal(t, string(enums.EventDocumentUploaded), msg.Attributes["event_type"])
	require.Equal(t, ok.String(), msg.Attributes["aggregate_id"])
	require.NotEmpty(t, msg.Attributes["event_id"])
	require.JSONEq(t, string(h.row(ok).Payload), string(msg.Data))

	delete(h.sink.failures, flaky)
	n, err = h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotNil(t, h.row(flaky).PublishedAt)
	require.Equal(t, outcomeCounter{"published": 2, "retried": 1}, h.counts)
}

func TestDrainDeadLettersAtCeiling(t *testing.T) {
	h := newRelayHarness(t, 2)
	docID := h.emitUpload()
	h.sink.failures[docID] = errors.New("unavailable")

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Empty(t, h.deadLetters())

	_, err = h.relay.drain(context.Background())
	require.NoError(t, err)

	letters := h.deadLetters()
	require.Len(t, letters, 1)
	require.Equal(t, enums.DeadLetterExhausted, letters[0].Reason)
	require.Equal(t, h.row(docID).ID, letters[0].EventID)
	require.Contains(t, *letters[0].Message, "unavailable")
	require.Equal(t, 2, h.row(docID).AttemptCount)

	n, err := h.relay.drain(context.Background())
	require.NoError(t, err)
	require.Zero(t, n, "parked rows must not be claimed again")
}

func TestDrainDeadLettersPermanentFailures(t *testing.T) {
	h := newRelayHarness(t, 5)
	rejected := h.emitUpload()
	h.sink.failures[rejected] = registry.NewNonRetryableError(errors.New("topic deleted"))

	unroutable := h.emitUpload()
	require.NoError(t, h.client.DB().Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", unroutable).
		Update("aggregate_type", enums.AggregatePayment).Error)

	_, err := h.relay.drain(context.Background())
	require.NoError(t, err)

	reasons := map[uuid.UUID]enums.DeadLetterReason{}
	for _, l := range h.deadLetters() {
		reasons[l.AggregateID] = l.Reason
	}
	require.Equal(t, map[uuid.UUID]enums.DeadLetterReason{
		rejected:   enums.DeadLetterRejected,
		unroutable: enums.DeadLetterUnroutable,
	}, reasons)
	require.Empty(t, h.sink.sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newRelayHarness(t, 5)
	h.emitUpload()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.relay.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, h.sink.sent, 1)
}

func TestNewRelayRequiresCollaborators(t *testing.T) {
	_, err := NewRelay(nil, nil, nil, nil, nil, nil, RelayConfig{})
	require.Error(t, err)

	cfg := RelayConfig{Idle: time.Second}.withDefaults()
	require.Equal(t, 50, cfg.Batch)
	require.Equal(t, 20*time.Second, cfg.MaxBackoff)
	require.Equal(t, 10, cfg.AttemptCeiling)
}
