package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// VendorTransaction correlates a vendor-issued transaction reference with a
// disbursement attempt. Created when a request is sent, updated (never
// deleted) when a callback or poll resolves it.
type VendorTransaction struct {
	ID             uuid.UUID                      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CorrelationID  string                         `gorm:"column:correlation_id;not null;uniqueIndex"`
	Vendor         enums.DisbursementVendor       `gorm:"column:vendor;type:disbursement_vendor;not null"`
	DisbursementID uuid.UUID                      `gorm:"column:disbursement_id;type:uuid;not null;index"`
	RawPayload     json.RawMessage                `gorm:"column:raw_payload;type:jsonb"`
	Outcome        enums.VendorTransactionOutcome `gorm:"column:outcome;type:vendor_transaction_outcome;not null;default:'pending'"`
	ResolvedAt     *time.Time                     `gorm:"column:resolved_at"`
	CreatedAt      time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}
