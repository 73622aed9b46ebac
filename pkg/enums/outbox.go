package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateDocument      OutboxAggregateType = "document"
	AggregatePayment       OutboxAggregateType = "payment"
	AggregateTicket        OutboxAggregateType = "support_ticket"
	AggregateRefundRequest OutboxAggregateType = "refund_request"
	AggregateProfile       OutboxAggregateType = "profile"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateDocument,
	AggregatePayment,
	AggregateTicket,
	AggregateRefundRequest,
	AggregateProfile,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventCreditsPurchased  OutboxEventType = "credits_purchased"
	EventDocumentUploaded  OutboxEventType = "document_uploaded"
	EventDocumentCompleted OutboxEventType = "document_completed"
	EventDocumentFailed    OutboxEventType = "document_failed"
	EventTicketReplied     OutboxEventType = "ticket_replied"
	EventRefundDecided     OutboxEventType = "refund_decided"
	EventPaymentReversed   OutboxEventType = "payment_reversed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCreditsPurchased,
	EventDocumentUploaded,
	EventDocumentCompleted,
	EventDocumentFailed,
	EventTicketReplied,
	EventRefundDecided,
	EventPaymentReversed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// DeadLetterReason records why the relay gave up on an outbox row.
type DeadLetterReason string

const (
	// DeadLetterUnroutable covers rows the event registry cannot decode or route.
	DeadLetterUnroutable DeadLetterReason = "unroutable"
	// DeadLetterRejected covers publishes that failed permanently.
	DeadLetterRejected DeadLetterReason = "rejected"
	// DeadLetterExhausted covers rows that ran out of publish attempts.
	DeadLetterExhausted DeadLetterReason = "exhausted"
)

func (r DeadLetterReason) IsValid() bool {
	switch r {
	case DeadLetterUnroutable, DeadLetterRejected, DeadLetterExhausted:
		return true
	}
	return false
}
