package enums

import "fmt"

// ScanType selects which reports a document needs and which balance pays for it.
type ScanType string

const (
	ScanTypeFull           ScanType = "full"
	ScanTypeSimilarityOnly ScanType = "similarity_only"
)

var validScanTypes = []ScanType{
	ScanTypeFull,
	ScanTypeSimilarityOnly,
}

func (v ScanType) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical scan type enum.
func (v ScanType) IsValid() bool {
	for _, candidate := range validScanTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseScanType converts raw input into ScanType.
func ParseScanType(value string) (ScanType, error) {
	for _, candidate := range validScanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scan type %q", value)
}

// CreditType returns the balance a scan of this type draws from.
func (v ScanType) CreditType() CreditType {
	if v == ScanTypeSimilarityOnly {
		return CreditTypeSimilarity
	}
	return CreditTypeFull
}

// RequiresAIReport reports whether completion needs an AI-detection report.
func (v ScanType) RequiresAIReport() bool {
	return v != ScanTypeSimilarityOnly
}
