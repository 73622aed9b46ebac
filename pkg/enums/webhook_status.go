package enums

import "fmt"

// WebhookStatus records what happened to a stored webhook delivery.
type WebhookStatus string

const (
	WebhookReceived         WebhookStatus = "received"
	WebhookProcessed        WebhookStatus = "processed"
	WebhookDuplicate        WebhookStatus = "duplicate"
	WebhookIgnored          WebhookStatus = "ignored"
	WebhookFailed           WebhookStatus = "failed"
	WebhookInvalidSignature WebhookStatus = "invalid_signature"
)

var validWebhookStatuses = []WebhookStatus{
	WebhookReceived,
	WebhookProcessed,
	WebhookDuplicate,
	WebhookIgnored,
	WebhookFailed,
	WebhookInvalidSignature,
}

func (v WebhookStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical webhook status enum.
func (v WebhookStatus) IsValid() bool {
	for _, candidate := range validWebhookStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseWebhookStatus converts raw input into WebhookStatus.
func ParseWebhookStatus(value string) (WebhookStatus, error) {
	for _, candidate := range validWebhookStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook status %q", value)
}
