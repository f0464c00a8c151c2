package callbacks

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
)

// Repository guards the one-shot re-trigger bookkeeping for (beneficiary,
// loan) pairs under concurrent callback delivery.
type Repository interface {
	// ClaimRetrigger marks the pair processed exactly once. Returns true for
	// the caller that won the claim; every later caller sees false.
	ClaimRetrigger(ctx context.Context, beneficiaryID, loanID uuid.UUID) (bool, error)
	// ListClaims returns every pair row recorded for the beneficiary, for
	// operator introspection.
	ListClaims(ctx context.Context, beneficiaryID uuid.UUID) ([]models.GatewayCustomerLoan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the GORM-backed repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ClaimRetrigger(ctx context.Context, beneficiaryID, loanID uuid.UUID) (bool, error) {
	row := models.GatewayCustomerLoan{
		ID:            uuid.New(),
		BeneficiaryID: beneficiaryID,
		LoanID:        loanID,
		Processed:     true,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "beneficiary_id"}, {Name: "loan_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// The pair exists; claim it only if no one has yet.
	update := r.db.WithContext(ctx).
		Model(&models.GatewayCustomerLoan{}).
		Where("beneficiary_id = ? AND loan_id = ? AND processed = ?", beneficiaryID, loanID, false).
		Update("processed", true)
	if update.Error != nil {
		return false, update.Error
	}
	return update.RowsAffected > 0, nil
}

func (r *repository) ListClaims(ctx context.Context, beneficiaryID uuid.UUID) ([]models.GatewayCustomerLoan, error) {
	var rows []models.GatewayCustomerLoan
	err := r.db.WithContext(ctx).
		Where("beneficiary_id = ?", beneficiaryID).
		Find(&rows).Error
	return rows, err
}
