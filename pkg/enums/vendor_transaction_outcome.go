package enums

import "fmt"

// VendorTransactionOutcome records how a vendor correlation resolved during
// reconciliation or callback processing.
type VendorTransactionOutcome string

const (
	VendorTransactionOutcomePending  VendorTransactionOutcome = "pending"
	VendorTransactionOutcomeSuccess  VendorTransactionOutcome = "success"
	VendorTransactionOutcomeFailed   VendorTransactionOutcome = "failed"
	VendorTransactionOutcomeNotFound VendorTransactionOutcome = "not_found"
)

var validVendorTransactionOutcomes = []VendorTransactionOutcome{
	VendorTransactionOutcomePending,
	VendorTransactionOutcomeSuccess,
	VendorTransactionOutcomeFailed,
	VendorTransactionOutcomeNotFound,
}

// String implements fmt.Stringer.
func (o VendorTransactionOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known VendorTransactionOutcome.
func (o VendorTransactionOutcome) IsValid() bool {
	for _, candidate := range validVendorTransactionOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseVendorTransactionOutcome converts raw input into a VendorTransactionOutcome.
func ParseVendorTransactionOutcome(value string) (VendorTransactionOutcome, error) {
	for _, candidate := range validVendorTransactionOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor transaction outcome %q", value)
}
