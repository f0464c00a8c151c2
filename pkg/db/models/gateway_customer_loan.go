package models

import (
	"time"

	"github.com/google/uuid"
)

// GatewayCustomerLoan guards the "beneficiary became usable again" side effect
// against concurrent callback delivery: the processed flag is set exactly once
// per (beneficiary, loan) pair before re-triggering that loan's disbursement.
type GatewayCustomerLoan struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BeneficiaryID uuid.UUID `gorm:"column:beneficiary_id;type:uuid;not null;index:idx_gateway_customer_loans_pair,unique"`
	LoanID        uuid.UUID `gorm:"column:loan_id;type:uuid;not null;index:idx_gateway_customer_loans_pair,unique"`
	Processed     bool      `gorm:"column:processed;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
