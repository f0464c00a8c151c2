package vendors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// FailureKind classifies a vendor-call failure for retry policy. Client
// failures are terminal for the attempt; service and timeout failures are
// retryable a bounded number of times.
type FailureKind string

const (
	FailureNone    FailureKind = ""
	FailureClient  FailureKind = "client"
	FailureService FailureKind = "service"
	FailureTimeout FailureKind = "timeout"
)

// Failure carries the vendor error envelope as a value. Adapters never raise
// on a well-formed error response; policy decisions happen upstream on this
// value.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	VendorCode string      `json:"vendor_code,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// IsZero reports whether the call succeeded.
func (f Failure) IsZero() bool {
	return f.Kind == FailureNone
}

// Retryable reports whether the same request may be re-issued.
func (f Failure) Retryable() bool {
	return f.Kind == FailureService || f.Kind == FailureTimeout
}

// ClientFailure builds a non-retryable failure.
func ClientFailure(code, message string) Failure {
	return Failure{Kind: FailureClient, VendorCode: code, Message: message}
}

// ServiceFailure builds a retryable vendor-side failure.
func ServiceFailure(code, message string) Failure {
	return Failure{Kind: FailureService, VendorCode: code, Message: message}
}

// TimeoutFailure builds a timeout failure.
func TimeoutFailure(message string) Failure {
	return Failure{Kind: FailureTimeout, Message: message}
}

// ClassifyStatus maps an HTTP status to a failure kind. 2xx maps to none.
func ClassifyStatus(status int) FailureKind {
	switch {
	case status >= 200 && status < 300:
		return FailureNone
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return FailureTimeout
	case status >= 400 && status < 500:
		return FailureClient
	default:
		return FailureService
	}
}

// BeneficiaryRequest carries the customer context for vendor-side payout
// destination registration.
type BeneficiaryRequest struct {
	CustomerID    uuid.UUID
	AccountNumber string
	BankCode      string
	AccountName   string
	PhoneNumber   string
}

// BeneficiaryResult is the typed outcome of create_or_update_beneficiary.
type BeneficiaryResult struct {
	Accepted      bool
	ExternalID    string
	Status        enums.BeneficiaryStatus
	CorrelationID string
	Failure       Failure
	Raw           json.RawMessage
}

// DisbursementRequest carries everything a vendor needs to move funds.
// CorrelationID is assigned locally before the call so a timed-out request
// can still be reconciled against the vendor.
type DisbursementRequest struct {
	DisbursementID        uuid.UUID
	LoanID                uuid.UUID
	CorrelationID         string
	BeneficiaryExternalID string
	AccountNumber         string
	BankCode              string
	Amount                decimal.Decimal
	Remark                string
}

// DisbursementResult is the typed outcome of disburse / check_disburse_status.
//
// Accepted means the vendor took the request (HTTP 202 with a reference);
// Completed/Failed report a final outcome from a status poll or callback;
// NotFound means the vendor has no record of the correlation id.
type DisbursementResult struct {
	Accepted      bool
	Completed     bool
	Failed        bool
	NotFound      bool
	Reference     string
	CorrelationID string
	Failure       Failure
	Raw           json.RawMessage
}

// Outcome folds the result into the reconciliation outcome stored on the
// vendor transaction row.
func (r DisbursementResult) Outcome() enums.VendorTransactionOutcome {
	switch {
	case r.Completed:
		return enums.VendorTransactionOutcomeSuccess
	case r.Failed:
		return enums.VendorTransactionOutcomeFailed
	case r.NotFound:
		return enums.VendorTransactionOutcomeNotFound
	default:
		return enums.VendorTransactionOutcomePending
	}
}

// BalanceResult is the typed outcome of check_balance.
type BalanceResult struct {
	Status     enums.BalanceStatus
	Sufficient bool
	Balance    decimal.Decimal
	Failure    Failure
}

// BalanceString renders the balance the way vendor reports are exposed to
// operators, always with two decimal places.
func (b BalanceResult) BalanceString() string {
	return b.Balance.StringFixed(2)
}

// Gateway is the thin adapter every disbursement vendor implements. All
// methods return typed results; a network or vendor failure is carried in the
// result's Failure value, never raised.
type Gateway interface {
	Name() enums.DisbursementVendor
	CreateOrUpdateBeneficiary(ctx context.Context, req BeneficiaryRequest) BeneficiaryResult
	Disburse(ctx context.Context, req DisbursementRequest) DisbursementResult
	CheckDisburseStatus(ctx context.Context, correlationID string) DisbursementResult
	CheckBalance(ctx context.Context, minRequired decimal.Decimal) BalanceResult
}

// NewCorrelationID mints the locally-assigned correlation key passed to
// vendors and used to match callbacks and polls.
func NewCorrelationID(vendor enums.DisbursementVendor) string {
	return string(vendor) + "-" + uuid.NewString()
}
