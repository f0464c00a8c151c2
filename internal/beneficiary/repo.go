package beneficiary

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Repository manages persistence for beneficiaries and their transition log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error)
	GetByCustomerAndVendor(ctx context.Context, customerID uuid.UUID, vendor enums.DisbursementVendor) (*models.Beneficiary, error)
	GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error)
	Create(ctx context.Context, beneficiary *models.Beneficiary) error
	// UpdateStatus applies the transition only when the row still carries
	// fromStatus. Returns true when a row was updated.
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus enums.BeneficiaryStatus, reason *string) (bool, error)
	SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	// UpdateRetryCount moves retry_count from an expected value, guarding
	// against concurrent increments.
	UpdateRetryCount(ctx context.Context, id uuid.UUID, fromCount, toCount int) (bool, error)
	CreateHistory(ctx context.Context, history *models.BeneficiaryHistory) error
	ListHistory(ctx context.Context, beneficiaryID uuid.UUID) ([]models.BeneficiaryHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a beneficiary repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	var row models.Beneficiary
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetByCustomerAndVendor(ctx context.Context, customerID uuid.UUID, vendor enums.DisbursementVendor) (*models.Beneficiary, error) {
	var row models.Beneficiary
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND vendor = ?", customerID, vendor).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error) {
	if externalID == "" {
		return nil, nil
	}
	var row models.Beneficiary
	err := r.db.WithContext(ctx).
		Where("vendor = ? AND external_id = ?", vendor, externalID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, beneficiary *models.Beneficiary) error {
	if beneficiary.ID == uuid.Nil {
		beneficiary.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(beneficiary).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus enums.BeneficiaryStatus, reason *string) (bool, error) {
	updates := map[string]any{"status": toStatus}
	if reason != nil {
		updates["last_transition_reason"] = *reason
	}
	result := r.db.WithContext(ctx).Model(&models.Beneficiary{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	return r.db.WithContext(ctx).Model(&models.Beneficiary{}).
		Where("id = ?", id).
		Update("external_id", externalID).Error
}

func (r *repository) UpdateRetryCount(ctx context.Context, id uuid.UUID, fromCount, toCount int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Beneficiary{}).
		Where("id = ? AND retry_count = ?", id, fromCount).
		Update("retry_count", toCount)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateHistory(ctx context.Context, history *models.BeneficiaryHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *repository) ListHistory(ctx context.Context, beneficiaryID uuid.UUID) ([]models.BeneficiaryHistory, error) {
	var rows []models.BeneficiaryHistory
	err := r.db.WithContext(ctx).
		Where("beneficiary_id = ?", beneficiaryID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
