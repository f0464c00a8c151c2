package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Loan is the slice of the loan-subsystem row this service consumes: status,
// the active disbursement link, and the payout destination.
type Loan struct {
	ID                       uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID               uuid.UUID        `gorm:"column:customer_id;type:uuid;not null;index"`
	LenderID                 uuid.UUID        `gorm:"column:lender_id;type:uuid;not null"`
	Status                   enums.LoanStatus `gorm:"column:status;type:loan_status;not null"`
	Amount                   decimal.Decimal  `gorm:"column:amount;type:numeric(16,2);not null"`
	DisbursementID           *uuid.UUID       `gorm:"column:disbursement_id;type:uuid"`
	BankAccountDestinationID *uuid.UUID       `gorm:"column:bank_account_destination_id;type:uuid"`
	CreatedAt                time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// LoanHistory is the append-only status log kept alongside every transition.
type LoanHistory struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LoanID       uuid.UUID        `gorm:"column:loan_id;type:uuid;not null;index"`
	OldStatus    enums.LoanStatus `gorm:"column:old_status;type:loan_status;not null"`
	NewStatus    enums.LoanStatus `gorm:"column:new_status;type:loan_status;not null"`
	ChangeReason string           `gorm:"column:change_reason;not null"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the plural form gorm would otherwise mangle.
func (LoanHistory) TableName() string {
	return "loan_histories"
}

// BankAccountDestination is the payout target attached to a loan.
type BankAccountDestination struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`
	BankCode      string    `gorm:"column:bank_code;not null"`
	AccountNumber string    `gorm:"column:account_number;not null"`
	NameInBank    string    `gorm:"column:name_in_bank;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
