package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationCreditsPurchased  NotificationType = "credits_purchased"
	NotificationDocumentCompleted NotificationType = "document_completed"
	NotificationTicketReplied     NotificationType = "ticket_replied"
	NotificationRefundDecided     NotificationType = "refund_decided"
	NotificationPaymentReceived   NotificationType = "payment_received"
	NotificationSystem            NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationCreditsPurchased,
	NotificationDocumentCompleted,
	NotificationTicketReplied,
	NotificationRefundDecided,
	NotificationPaymentReceived,
	NotificationSystem,
}

func (v NotificationType) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical notification type enum.
func (v NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
