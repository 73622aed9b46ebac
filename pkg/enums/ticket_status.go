package enums

import "fmt"

// TicketStatus tracks the support ticket lifecycle.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

var validTicketStatuses = []TicketStatus{
	TicketOpen,
	TicketInProgress,
	TicketResolved,
	TicketClosed,
}

func (v TicketStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical ticket status enum.
func (v TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseTicketStatus converts raw input into TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}

// IsTerminal reports whether a user reply should reopen the ticket.
func (v TicketStatus) IsTerminal() bool {
	return v == TicketResolved || v == TicketClosed
}
