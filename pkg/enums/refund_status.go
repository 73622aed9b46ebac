package enums

import "fmt"

// RefundStatus tracks an admin decision on a refund request.
type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

var validRefundStatuses = []RefundStatus{
	RefundPending,
	RefundApproved,
	RefundRejected,
}

func (v RefundStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical refund status enum.
func (v RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseRefundStatus converts raw input into RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	for _, candidate := range validRefundStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
