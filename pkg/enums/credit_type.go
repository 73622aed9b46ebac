package enums

import "fmt"

// CreditType selects the balance column a ledger entry touches.
type CreditType string

const (
	CreditTypeFull       CreditType = "full"
	CreditTypeSimilarity CreditType = "similarity"
)

var validCreditTypes = []CreditType{
	CreditTypeFull,
	CreditTypeSimilarity,
}

func (v CreditType) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical credit type enum.
func (v CreditType) IsValid() bool {
	for _, candidate := range validCreditTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCreditType converts raw input into CreditType.
func ParseCreditType(value string) (CreditType, error) {
	for _, candidate := range validCreditTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit type %q", value)
}

// BalanceColumn is the profiles column holding this credit type.
func (v CreditType) BalanceColumn() string {
	if v == CreditTypeSimilarity {
		return "similarity_credit_balance"
	}
	return "credit_balance"
}
