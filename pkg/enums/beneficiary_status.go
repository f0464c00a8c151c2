package enums

import "fmt"

// BeneficiaryStatus tracks the vendor-side registration lifecycle of a payout destination.
type BeneficiaryStatus string

const (
	BeneficiaryStatusUnknown  BeneficiaryStatus = "unknown"
	BeneficiaryStatusInactive BeneficiaryStatus = "inactive"
	BeneficiaryStatusActive   BeneficiaryStatus = "active"
	BeneficiaryStatusBlocked  BeneficiaryStatus = "blocked"
	BeneficiaryStatusDisabled BeneficiaryStatus = "disabled"
	// BeneficiaryStatusUnknownCallbackLost marks beneficiaries whose vendor
	// callback could never be correlated after exhausting retries, so operators
	// can tell "never registered" apart from "registered but callback lost".
	BeneficiaryStatusUnknownCallbackLost BeneficiaryStatus = "unknown_due_to_unsuccessful_callback"
)

var validBeneficiaryStatuses = []BeneficiaryStatus{
	BeneficiaryStatusUnknown,
	BeneficiaryStatusInactive,
	BeneficiaryStatusActive,
	BeneficiaryStatusBlocked,
	BeneficiaryStatusDisabled,
	BeneficiaryStatusUnknownCallbackLost,
}

// String implements fmt.Stringer.
func (b BeneficiaryStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BeneficiaryStatus.
func (b BeneficiaryStatus) IsValid() bool {
	for _, candidate := range validBeneficiaryStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBeneficiaryStatus converts raw input into a BeneficiaryStatus.
func ParseBeneficiaryStatus(value string) (BeneficiaryStatus, error) {
	for _, candidate := range validBeneficiaryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid beneficiary status %q", value)
}
