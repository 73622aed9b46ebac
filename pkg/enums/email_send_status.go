package enums

import "fmt"

type EmailSendStatus string

const (
	EmailSent    EmailSendStatus = "sent"
	EmailSkipped EmailSendStatus = "skipped"
	EmailFailed  EmailSendStatus = "failed"
)

var validEmailSendStatuses = []EmailSendStatus{
	EmailSent,
	EmailSkipped,
	EmailFailed,
}

func (v EmailSendStatus) String() string {
	return string(v)
}

func (v EmailSendStatus) IsValid() bool {
	for _, candidate := range validEmailSendStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseEmailSendStatus converts raw input into EmailSendStatus.
func ParseEmailSendStatus(value string) (EmailSendStatus, error) {
	for _, candidate := range validEmailSendStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email send status %q", value)
}
