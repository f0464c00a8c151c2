package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// DisbursementInitiatedEvent signals a disbursement attempt was accepted by a
// vendor and is now awaiting its callback or reconciliation poll.
type DisbursementInitiatedEvent struct {
	DisbursementID uuid.UUID                `json:"disbursement_id"`
	LoanID         uuid.UUID                `json:"loan_id"`
	Vendor         enums.DisbursementVendor `json:"vendor"`
	Amount         string                   `json:"amount"`
	CorrelationID  string                   `json:"correlation_id"`
}

// DisbursementCompletedEvent surfaces a terminal successful disbursement.
type DisbursementCompletedEvent struct {
	DisbursementID uuid.UUID                `json:"disbursement_id"`
	LoanID         uuid.UUID                `json:"loan_id"`
	Vendor         enums.DisbursementVendor `json:"vendor"`
	Amount         string                   `json:"amount"`
	Reference      string                   `json:"reference,omitempty"`
	CompletedAt    time.Time                `json:"completed_at"`
}

// DisbursementFailedEvent reports a vendor-terminal failure; when the failover
// path replaced the attempt, SupersededBy carries the replacing row.
type DisbursementFailedEvent struct {
	DisbursementID uuid.UUID                `json:"disbursement_id"`
	LoanID         uuid.UUID                `json:"loan_id"`
	Vendor         enums.DisbursementVendor `json:"vendor"`
	Reason         string                   `json:"reason,omitempty"`
	SupersededBy   *uuid.UUID               `json:"superseded_by,omitempty"`
}

// DisbursementCancelledEvent reports an operator cancellation.
type DisbursementCancelledEvent struct {
	DisbursementID uuid.UUID `json:"disbursement_id"`
	LoanID         uuid.UUID `json:"loan_id"`
	Reason         string    `json:"reason,omitempty"`
}

// DisbursementFailedOverEvent records a cross-vendor retry of one loan payout.
type DisbursementFailedOverEvent struct {
	LoanID             uuid.UUID                `json:"loan_id"`
	FromDisbursementID uuid.UUID                `json:"from_disbursement_id"`
	ToDisbursementID   uuid.UUID                `json:"to_disbursement_id"`
	FromVendor         enums.DisbursementVendor `json:"from_vendor"`
	ToVendor           enums.DisbursementVendor `json:"to_vendor"`
}

// BeneficiaryStatusMovedEvent records one applied beneficiary transition.
type BeneficiaryStatusMovedEvent struct {
	BeneficiaryID uuid.UUID                `json:"beneficiary_id"`
	CustomerID    uuid.UUID                `json:"customer_id"`
	Vendor        enums.DisbursementVendor `json:"vendor"`
	FromStatus    enums.BeneficiaryStatus  `json:"from_status"`
	ToStatus      enums.BeneficiaryStatus  `json:"to_status"`
	Reason        string                   `json:"reason,omitempty"`
}

// BeneficiaryRetryLimitEvent alerts operations that automated re-registration
// for a beneficiary was suppressed and needs a manual reset.
type BeneficiaryRetryLimitEvent struct {
	BeneficiaryID uuid.UUID                `json:"beneficiary_id"`
	CustomerID    uuid.UUID                `json:"customer_id"`
	Vendor        enums.DisbursementVendor `json:"vendor"`
	RetryLimit    int                      `json:"retry_limit"`
}

// VendorBalanceLowEvent alerts operations that a vendor float dropped below
// the configured threshold.
type VendorBalanceLowEvent struct {
	Vendor    enums.DisbursementVendor `json:"vendor"`
	Balance   string                   `json:"balance"`
	Threshold string                   `json:"threshold"`
	CheckedAt time.Time                `json:"checked_at"`
}

// LoanDisbursalFailedEvent reports that every vendor path for a loan payout
// was exhausted.
type LoanDisbursalFailedEvent struct {
	LoanID         uuid.UUID `json:"loan_id"`
	DisbursementID uuid.UUID `json:"disbursement_id"`
	Reason         string    `json:"reason,omitempty"`
}
