package enums

import "fmt"

// PaymentProvider names the processor that took a payment.
type PaymentProvider string

const (
	ProviderPaddle PaymentProvider = "paddle"
	ProviderViva   PaymentProvider = "viva"
	ProviderStripe PaymentProvider = "stripe"
)

var validPaymentProviders = []PaymentProvider{
	ProviderPaddle,
	ProviderViva,
	ProviderStripe,
}

func (v PaymentProvider) String() string {
	return string(v)
}

// IsValid reports whether the value matches the canonical payment provider enum.
func (v PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts raw input into PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
