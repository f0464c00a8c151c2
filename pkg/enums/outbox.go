package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateDisbursement OutboxAggregateType = "disbursement"
	AggregateBeneficiary  OutboxAggregateType = "beneficiary"
	AggregateLoan         OutboxAggregateType = "loan"
	AggregateVendor       OutboxAggregateType = "vendor"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateDisbursement,
	AggregateBeneficiary,
	AggregateLoan,
	AggregateVendor,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventDisbursementInitiated  OutboxEventType = "disbursement_initiated"
	EventDisbursementCompleted  OutboxEventType = "disbursement_completed"
	EventDisbursementFailed     OutboxEventType = "disbursement_failed"
	EventDisbursementCancelled  OutboxEventType = "disbursement_cancelled"
	EventDisbursementFailedOver OutboxEventType = "disbursement_failed_over"
	EventBeneficiaryStatusMoved OutboxEventType = "beneficiary_status_moved"
	EventBeneficiaryRetryLimit  OutboxEventType = "beneficiary_retry_limit_reached"
	EventVendorBalanceLow       OutboxEventType = "vendor_balance_low"
	EventLoanDisbursalFailed    OutboxEventType = "loan_disbursal_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventDisbursementInitiated,
	EventDisbursementCompleted,
	EventDisbursementFailed,
	EventDisbursementCancelled,
	EventDisbursementFailedOver,
	EventBeneficiaryStatusMoved,
	EventBeneficiaryRetryLimit,
	EventVendorBalanceLow,
	EventLoanDisbursalFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
