package enums

import "fmt"

type MagicLinkStatus string

const (
	MagicLinkActive   MagicLinkStatus = "active"
	MagicLinkDisabled MagicLinkStatus = "disabled"
	MagicLinkExpired  MagicLinkStatus = "expired"
)

var validMagicLinkStatuses = []MagicLinkStatus{
	MagicLinkActive,
	MagicLinkDisabled,
	MagicLinkExpired,
}

func (v MagicLinkStatus) String() string {
	return string(v)
}

func (v MagicLinkStatus) IsValid() bool {
	for _, candidate := range validMagicLinkStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseMagicLinkStatus converts raw input into MagicLinkStatus.
func ParseMagicLinkStatus(value string) (MagicLinkStatus, error) {
	for _, candidate := range validMagicLinkStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid magic link status %q", value)
}
