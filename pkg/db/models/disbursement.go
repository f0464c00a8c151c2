package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Disbursement records one attempt to transfer loan funds via a vendor. At
// most one attempt per loan may be in flight; a failed attempt may be
// superseded by a new row under the failover vendor, linked by loan id.
type Disbursement struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LoanID        uuid.UUID                `gorm:"column:loan_id;type:uuid;not null;index"`
	Vendor        enums.DisbursementVendor `gorm:"column:vendor;type:disbursement_vendor;not null"`
	Status        enums.DisbursementStatus `gorm:"column:status;type:disbursement_status;not null;default:'pending'"`
	Amount        decimal.Decimal          `gorm:"column:amount;type:numeric(16,2);not null"`
	ExternalRef   *string                  `gorm:"column:external_ref;index"`
	FailureReason *string                  `gorm:"column:failure_reason"`
	// SupersededBy links to the failover attempt that replaced this one.
	SupersededBy *uuid.UUID `gorm:"column:superseded_by;type:uuid"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
