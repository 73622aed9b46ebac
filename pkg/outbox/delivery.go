package outbox

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// Delivery is an outbox event read back off the bus by a subscriber.
type Delivery struct {
	MessageID     string
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Actor         *ActorRef
	Data          json.RawMessage
}

// DecodeDelivery rebuilds a Delivery from a message body and its attributes.
// The body is the stored PayloadEnvelope; attributes fill in what it lacks.
// Aggregate attributes are optional, but must parse when present.
func DecodeDelivery(messageID string, body []byte, attrs map[string]string) (Delivery, error) {
	attr := func(k string) string { return strings.TrimSpace(attrs[k]) }

	var env PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Delivery{}, fmt.Errorf("decode envelope: %w", err)
	}
	d := Delivery{MessageID: messageID, Actor: env.Actor, Data: env.Data, AggregateID: attr("aggregate_id")}

	var err error
	if d.EventType, err = enums.ParseOutboxEventType(attr("event_type")); err != nil {
		return Delivery{}, fmt.Errorf("event_type: %w", err)
	}
	if raw := attr("aggregate_type"); raw != "" {
		if d.AggregateType, err = enums.ParseOutboxAggregateType(raw); err != nil {
			return Delivery{}, fmt.Errorf("aggregate_type: %w", err)
		}
	}

	id := strings.TrimSpace(env.EventID)
	if id == "" {
		id = attr("event_id")
	}
	if d.EventID, err = uuid.Parse(id); err != nil {
		return Delivery{}, fmt.Errorf("event_id %q: %w", id, err)
	}

	d.OccurredAt = env.OccurredAt
	if d.OccurredAt.IsZero() {
		if at, perr := time.Parse(time.RFC3339Nano, attr("occurred_at")); perr == nil {
			d.OccurredAt = at
		}
	}
	d.OccurredAt = d.OccurredAt.UTC()
	return d, nil
}
