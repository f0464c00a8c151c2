package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// BeneficiaryHistory is the append-only transition log for a beneficiary.
type BeneficiaryHistory struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BeneficiaryID uuid.UUID               `gorm:"column:beneficiary_id;type:uuid;not null;index"`
	OldStatus     enums.BeneficiaryStatus `gorm:"column:old_status;type:beneficiary_status;not null"`
	NewStatus     enums.BeneficiaryStatus `gorm:"column:new_status;type:beneficiary_status;not null"`
	Reason        *string                 `gorm:"column:reason"`
	VendorEventAt *time.Time              `gorm:"column:vendor_event_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the plural form gorm would otherwise mangle.
func (BeneficiaryHistory) TableName() string {
	return "beneficiary_histories"
}
