package enums

import "fmt"

// CreditTransactionType classifies entries in credit_transactions.
type CreditTransactionType string

const (
	CreditPurchase        CreditTransactionType = "purchase"
	CreditUsage           CreditTransactionType = "usage"
	CreditRefund          CreditTransactionType = "refund"
	CreditAdminAdjustment CreditTransactionType = "admin_adjustment"
)

var validCreditTransactionTypes = []CreditTransactionType{
	CreditPurchase,
	CreditUsage,
	CreditRefund,
	CreditAdminAdjustment,
}

func (v CreditTransactionType) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical credit transaction type enum.
func (v CreditTransactionType) IsValid() bool {
	for _, candidate := range validCreditTransactionTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCreditTransactionType converts raw input into CreditTransactionType.
func ParseCreditTransactionType(value string) (CreditTransactionType, error) {
	for _, candidate := range validCreditTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit transaction type %q", value)
}
