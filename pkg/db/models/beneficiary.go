package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Beneficiary is the vendor-side registration of a payout destination for a
// customer. Rows are never deleted; status moves only through the registry's
// guarded update path.
type Beneficiary struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID           uuid.UUID                `gorm:"column:customer_id;type:uuid;not null;index:idx_beneficiaries_customer_vendor,unique"`
	Vendor               enums.DisbursementVendor `gorm:"column:vendor;type:disbursement_vendor;not null;index:idx_beneficiaries_customer_vendor,unique"`
	ExternalID           string                   `gorm:"column:external_id;index"`
	AccountNumber        string                   `gorm:"column:account_number;not null"`
	BankCode             string                   `gorm:"column:bank_code;not null"`
	Status               enums.BeneficiaryStatus  `gorm:"column:status;type:beneficiary_status;not null;default:'unknown'"`
	RetryCount           int                      `gorm:"column:retry_count;not null;default:0"`
	LastTransitionReason *string                  `gorm:"column:last_transition_reason"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
