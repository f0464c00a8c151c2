package enums

import "fmt"

// LoanStatus is the slice of the loan lifecycle this service reads and writes.
// The loan subsystem owns the full lifecycle; only disbursal-adjacent statuses
// appear here.
type LoanStatus string

const (
	LoanStatusLenderApproved       LoanStatus = "lender_approved"
	LoanStatusFundDisbursalOngoing LoanStatus = "fund_disbursal_ongoing"
	LoanStatusFundDisbursed        LoanStatus = "fund_disbursed"
	LoanStatusFundDisbursalFailed  LoanStatus = "fund_disbursal_failed"
	LoanStatusCancelled            LoanStatus = "cancelled"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusLenderApproved,
	LoanStatusFundDisbursalOngoing,
	LoanStatusFundDisbursed,
	LoanStatusFundDisbursalFailed,
	LoanStatusCancelled,
}

// String implements fmt.Stringer.
func (l LoanStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoanStatus.
func (l LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsDisbursable reports whether a disbursement attempt may be started.
func (l LoanStatus) IsDisbursable() bool {
	return l == LoanStatusLenderApproved || l == LoanStatusFundDisbursalOngoing || l == LoanStatusFundDisbursalFailed
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
