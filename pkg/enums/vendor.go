package enums

import "fmt"

// DisbursementVendor identifies the payment gateway carrying a disbursement.
// Vendor selection is resolved once at attempt creation and stored on the row;
// downstream code dispatches on this enum, never on raw strings.
type DisbursementVendor string

const (
	VendorAyoconnect DisbursementVendor = "ayoconnect"
	VendorXfers      DisbursementVendor = "xfers"
	VendorFaspay     DisbursementVendor = "faspay"
)

var validDisbursementVendors = []DisbursementVendor{
	VendorAyoconnect,
	VendorXfers,
	VendorFaspay,
}

// String implements fmt.Stringer.
func (v DisbursementVendor) String() string {
	return string(v)
}

// IsValid reports whether the value is a known DisbursementVendor.
func (v DisbursementVendor) IsValid() bool {
	for _, candidate := range validDisbursementVendors {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseDisbursementVendor converts raw input into a DisbursementVendor.
func ParseDisbursementVendor(value string) (DisbursementVendor, error) {
	for _, candidate := range validDisbursementVendors {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid disbursement vendor %q", value)
}
