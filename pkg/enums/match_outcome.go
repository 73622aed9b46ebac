package enums

import "fmt"

// MatchOutcome is the bulk matcher verdict for one report file.
type MatchOutcome string

const (
	MatchMatched   MatchOutcome = "matched"
	MatchUnmatched MatchOutcome = "unmatched"
)

var validMatchOutcomes = []MatchOutcome{
	MatchMatched,
	MatchUnmatched,
}

func (v MatchOutcome) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical match outcome enum.
func (v MatchOutcome) IsValid() bool {
	for _, candidate := range validMatchOutcomes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseMatchOutcome converts raw input into MatchOutcome.
func ParseMatchOutcome(value string) (MatchOutcome, error) {
	for _, candidate := range validMatchOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match outcome %q", value)
}
