package loans

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
)

// Service is the loan-subsystem contract this core consumes: status
// transitions with append-only history, and the payout destination read.
type Service interface {
	GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	// UpdateLoanStatusAndHistory moves the loan to newStatus with a guarded
	// conditional write and appends a history row. Returns false without
	// error when the loan already left fromStatus (concurrent writer won).
	UpdateLoanStatusAndHistory(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, fromStatus, newStatus enums.LoanStatus, changeReason string) (bool, error)
	AttachDisbursement(ctx context.Context, tx *gorm.DB, loanID, disbursementID uuid.UUID) error
	GetBankAccountDestination(ctx context.Context, loan *models.Loan) (*models.BankAccountDestination, error)
	ListRetriggerableLoans(ctx context.Context, customerID uuid.UUID) ([]models.Loan, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the loan service with its repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	if loanID == uuid.Nil {
		return nil, fmt.Errorf("loan id is required")
	}
	return s.repo.GetByID(ctx, loanID)
}

func (s *service) UpdateLoanStatusAndHistory(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, fromStatus, newStatus enums.LoanStatus, changeReason string) (bool, error) {
	if loanID == uuid.Nil {
		return false, fmt.Errorf("loan id is required")
	}
	if !newStatus.IsValid() {
		return false, fmt.Errorf("invalid loan status %q", newStatus)
	}
	if fromStatus == newStatus {
		return false, nil
	}

	repo := s.repo.WithTx(tx)
	applied, err := repo.UpdateStatus(ctx, loanID, fromStatus, newStatus)
	if err != nil {
		return false, err
	}
	if !applied {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"loan_id":     loanID.String(),
			"from_status": fromStatus,
			"new_status":  newStatus,
		})
		s.logg.Warn(logCtx, "loan status transition lost race, skipping")
		return false, nil
	}

	history := &models.LoanHistory{
		LoanID:       loanID,
		OldStatus:    fromStatus,
		NewStatus:    newStatus,
		ChangeReason: changeReason,
	}
	if err := repo.CreateHistory(ctx, history); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) AttachDisbursement(ctx context.Context, tx *gorm.DB, loanID, disbursementID uuid.UUID) error {
	if loanID == uuid.Nil || disbursementID == uuid.Nil {
		return fmt.Errorf("loan id and disbursement id are required")
	}
	return s.repo.WithTx(tx).SetDisbursementID(ctx, loanID, disbursementID)
}

func (s *service) GetBankAccountDestination(ctx context.Context, loan *models.Loan) (*models.BankAccountDestination, error) {
	if loan == nil {
		return nil, fmt.Errorf("loan is required")
	}
	if loan.BankAccountDestinationID == nil {
		return nil, nil
	}
	return s.repo.GetBankAccountDestination(ctx, *loan.BankAccountDestinationID)
}

// ListRetriggerableLoans returns the customer's loans whose disbursal can be
// replayed after their beneficiary becomes usable again.
func (s *service) ListRetriggerableLoans(ctx context.Context, customerID uuid.UUID) ([]models.Loan, error) {
	if customerID == uuid.Nil {
		return nil, fmt.Errorf("customer id is required")
	}
	return s.repo.ListByCustomerAndStatuses(ctx, customerID, []enums.LoanStatus{
		enums.LoanStatusFundDisbursalFailed,
		enums.LoanStatusFundDisbursalOngoing,
	})
}
