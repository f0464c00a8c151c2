package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LenderBalance is the lender-side ledger row debited when a disbursement
// reaches completed. Mutated only under a row lock.
type LenderBalance struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LenderID             uuid.UUID       `gorm:"column:lender_id;type:uuid;not null;uniqueIndex"`
	AvailableBalance     decimal.Decimal `gorm:"column:available_balance;type:numeric(18,2);not null"`
	OutstandingPrincipal decimal.Decimal `gorm:"column:outstanding_principal;type:numeric(18,2);not null;default:0"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// AccountLimit tracks the borrower credit limit consumed on completed
// disbursal. Mutated only under a row lock, in the same transaction as the
// lender debit.
type AccountLimit struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID     uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;uniqueIndex"`
	AvailableLimit decimal.Decimal `gorm:"column:available_limit;type:numeric(16,2);not null"`
	UsedLimit      decimal.Decimal `gorm:"column:used_limit;type:numeric(16,2);not null;default:0"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
