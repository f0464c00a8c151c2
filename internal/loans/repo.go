package loans

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Repository manages persistence for the loan slice this service consumes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	// UpdateStatus applies the transition only when the row still carries
	// fromStatus. Returns true when a row was updated.
	UpdateStatus(ctx context.Context, loanID uuid.UUID, fromStatus, toStatus enums.LoanStatus) (bool, error)
	SetDisbursementID(ctx context.Context, loanID, disbursementID uuid.UUID) error
	CreateHistory(ctx context.Context, history *models.LoanHistory) error
	GetBankAccountDestination(ctx context.Context, id uuid.UUID) (*models.BankAccountDestination, error)
	ListByCustomerAndStatuses(ctx context.Context, customerID uuid.UUID, statuses []enums.LoanStatus) ([]models.Loan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).Where("id = ?", loanID).First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

func (r *repository) UpdateStatus(ctx context.Context, loanID uuid.UUID, fromStatus, toStatus enums.LoanStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND status = ?", loanID, fromStatus).
		Update("status", toStatus)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetDisbursementID(ctx context.Context, loanID, disbursementID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ?", loanID).
		Update("disbursement_id", disbursementID).Error
}

func (r *repository) CreateHistory(ctx context.Context, history *models.LoanHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *repository) GetBankAccountDestination(ctx context.Context, id uuid.UUID) (*models.BankAccountDestination, error) {
	var destination models.BankAccountDestination
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&destination).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &destination, nil
}

func (r *repository) ListByCustomerAndStatuses(ctx context.Context, customerID uuid.UUID, statuses []enums.LoanStatus) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND status IN ?", customerID, statuses).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
