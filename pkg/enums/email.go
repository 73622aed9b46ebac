package enums

import "fmt"

// EmailType separates transactional sends from marketing sends, which honour the opt-in flag.
type EmailType string

const (
	EmailTransactional EmailType = "transactional"
	EmailMarketing     EmailType = "marketing"
	EmailAnnouncement  EmailType = "announcement"
)

var validEmailTypes = []EmailType{
	EmailTransactional,
	EmailMarketing,
	EmailAnnouncement,
}

func (v EmailType) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical email type enum.
func (v EmailType) IsValid() bool {
	for _, candidate := range validEmailTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseEmailType converts raw input into EmailType.
func ParseEmailType(value string) (EmailType, error) {
	for _, candidate := range validEmailTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email type %q", value)
}
