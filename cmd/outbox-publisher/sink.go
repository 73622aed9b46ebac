package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/outbox/registry"
)

// Sink delivers a message to a topic and returns the broker's message ID.
type Sink interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type topicSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubSink caches one publisher per topic. The relay runs single-threaded
// so the map needs no lock.
type pubsubSink struct {
	client topicSource
	topics map[string]*gcppubsub.Publisher
}

func newPubSubSink(client topicSource) *pubsubSink {
	return &pubsubSink{client: client, topics: map[string]*gcppubsub.Publisher{}}
}

func (s *pubsubSink) Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	pub, ok := s.topics[topic]
	if !ok {
		pub = s.client.Publisher(topic)
		if pub == nil {
			return "", registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
		}
		s.topics[topic] = pub
	}
	return pub.Publish(ctx, msg).Get(ctx)
}

// Stop flushes buffered messages on every cached publisher.
func (s *pubsubSink) Stop() {
	for _, pub := range s.topics {
		pub.Stop()
	}
}

// messageFor keeps the stored envelope as the body. Attributes let
// subscribers filter without decoding it.
func messageFor(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}
