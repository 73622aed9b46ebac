package enums

import "fmt"

// DocumentStatus maps to the document_status enum in Postgres.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusInProgress DocumentStatus = "in_progress"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusError      DocumentStatus = "error"
)

var validDocumentStatuses = []DocumentStatus{
	DocumentStatusPending,
	DocumentStatusInProgress,
	DocumentStatusCompleted,
	DocumentStatusError,
}

func (v DocumentStatus) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical document status enum.
func (v DocumentStatus) IsValid() bool {
	for _, candidate := range validDocumentStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseDocumentStatus converts raw input into DocumentStatus.
func ParseDocumentStatus(value string) (DocumentStatus, error) {
	for _, candidate := range validDocumentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document status %q", value)
}
