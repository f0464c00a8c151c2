package enums

import "fmt"

// DisbursementStatus tracks the lifecycle of a single disbursement attempt.
type DisbursementStatus string

const (
	DisbursementStatusPending             DisbursementStatus = "pending"
	DisbursementStatusInitiated           DisbursementStatus = "initiated"
	DisbursementStatusCompleted           DisbursementStatus = "completed"
	DisbursementStatusFailed              DisbursementStatus = "failed"
	DisbursementStatusCancelled           DisbursementStatus = "cancelled"
	DisbursementStatusInsufficientBalance DisbursementStatus = "insufficient_balance"
)

var validDisbursementStatuses = []DisbursementStatus{
	DisbursementStatusPending,
	DisbursementStatusInitiated,
	DisbursementStatusCompleted,
	DisbursementStatusFailed,
	DisbursementStatusCancelled,
	DisbursementStatusInsufficientBalance,
}

// String implements fmt.Stringer.
func (d DisbursementStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DisbursementStatus.
func (d DisbursementStatus) IsValid() bool {
	for _, candidate := range validDisbursementStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status writes are accepted.
// Completed and cancelled attempts are settled; failed attempts are terminal
// for their vendor but may be superseded by a failover attempt.
func (d DisbursementStatus) IsTerminal() bool {
	switch d {
	case DisbursementStatusCompleted, DisbursementStatusCancelled, DisbursementStatusFailed:
		return true
	default:
		return false
	}
}

// IsInFlight reports whether the attempt still awaits a vendor outcome.
func (d DisbursementStatus) IsInFlight() bool {
	return d == DisbursementStatusPending || d == DisbursementStatusInitiated
}

// ParseDisbursementStatus converts raw input into a DisbursementStatus.
func ParseDisbursementStatus(value string) (DisbursementStatus, error) {
	for _, candidate := range validDisbursementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid disbursement status %q", value)
}
