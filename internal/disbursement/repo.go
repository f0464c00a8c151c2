package disbursement

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Repository is the persistence surface for disbursement attempts, their
// vendor transaction trail, and the balance rows debited on completion.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error)
	// GetActiveByLoanID returns the in-flight attempt for the loan, nil when
	// none exists.
	GetActiveByLoanID(ctx context.Context, loanID uuid.UUID) (*models.Disbursement, error)
	Create(ctx context.Context, disbursement *models.Disbursement) error
	// UpdateStatus applies a guarded status write. Returns false without
	// error when the row already left fromStatus.
	UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus enums.DisbursementStatus, failureReason *string) (bool, error)
	SetExternalRef(ctx context.Context, id uuid.UUID, externalRef string) error
	SetSupersededBy(ctx context.Context, id, successorID uuid.UUID) error
	// ListStaleInFlight returns attempts still pending or initiated whose
	// last write predates the cutoff.
	ListStaleInFlight(ctx context.Context, cutoff time.Time, limit int) ([]models.Disbursement, error)
	// ListDeferred returns attempts parked on insufficient_balance, oldest
	// first.
	ListDeferred(ctx context.Context, limit int) ([]models.Disbursement, error)

	GetVendorTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.VendorTransaction, error)
	// HasVendorTransaction reports whether any vendor call was recorded for
	// the attempt; a true result means re-issuing payment is unsafe.
	HasVendorTransaction(ctx context.Context, disbursementID uuid.UUID) (bool, error)
	// GetLatestVendorTransaction returns the newest recorded call for the
	// attempt, nil when none was ever issued.
	GetLatestVendorTransaction(ctx context.Context, disbursementID uuid.UUID) (*models.VendorTransaction, error)
	CreateVendorTransaction(ctx context.Context, txn *models.VendorTransaction) error
	// ResolveVendorTransaction stamps the outcome on a still-pending row.
	// Returns false when the row was already resolved.
	ResolveVendorTransaction(ctx context.Context, correlationID string, outcome enums.VendorTransactionOutcome, raw json.RawMessage) (bool, error)

	// GetLenderBalanceForUpdate loads the lender row under FOR UPDATE; only
	// meaningful inside a transaction.
	GetLenderBalanceForUpdate(ctx context.Context, lenderID uuid.UUID) (*models.LenderBalance, error)
	SaveLenderBalance(ctx context.Context, balance *models.LenderBalance) error
	GetAccountLimitForUpdate(ctx context.Context, customerID uuid.UUID) (*models.AccountLimit, error)
	SaveAccountLimit(ctx context.Context, limit *models.AccountLimit) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the GORM-backed repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error) {
	var row models.Disbursement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetActiveByLoanID(ctx context.Context, loanID uuid.UUID) (*models.Disbursement, error) {
	var row models.Disbursement
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND status IN ?", loanID, []enums.DisbursementStatus{
			enums.DisbursementStatusPending,
			enums.DisbursementStatusInitiated,
		}).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, disbursement *models.Disbursement) error {
	if disbursement.ID == uuid.Nil {
		disbursement.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(disbursement).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus enums.DisbursementStatus, failureReason *string) (bool, error) {
	updates := map[string]any{"status": toStatus}
	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}
	result := r.db.WithContext(ctx).
		Model(&models.Disbursement{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetExternalRef(ctx context.Context, id uuid.UUID, externalRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.Disbursement{}).
		Where("id = ?", id).
		Update("external_ref", externalRef).Error
}

func (r *repository) SetSupersededBy(ctx context.Context, id, successorID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Disbursement{}).
		Where("id = ?", id).
		Update("superseded_by", successorID).Error
}

func (r *repository) ListStaleInFlight(ctx context.Context, cutoff time.Time, limit int) ([]models.Disbursement, error) {
	var rows []models.Disbursement
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []enums.DisbursementStatus{
			enums.DisbursementStatusPending,
			enums.DisbursementStatusInitiated,
		}, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListDeferred(ctx context.Context, limit int) ([]models.Disbursement, error) {
	var rows []models.Disbursement
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.DisbursementStatusInsufficientBalance).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) GetVendorTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.VendorTransaction, error) {
	var row models.VendorTransaction
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) GetLatestVendorTransaction(ctx context.Context, disbursementID uuid.UUID) (*models.VendorTransaction, error) {
	var row models.VendorTransaction
	err := r.db.WithContext(ctx).
		Where("disbursement_id = ?", disbursementID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) HasVendorTransaction(ctx context.Context, disbursementID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VendorTransaction{}).
		Where("disbursement_id = ?", disbursementID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateVendorTransaction(ctx context.Context, txn *models.VendorTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ResolveVendorTransaction(ctx context.Context, correlationID string, outcome enums.VendorTransactionOutcome, raw json.RawMessage) (bool, error) {
	updates := map[string]any{
		"outcome":     outcome,
		"resolved_at": time.Now(),
	}
	if len(raw) > 0 {
		updates["raw_payload"] = raw
	}
	result := r.db.WithContext(ctx).
		Model(&models.VendorTransaction{}).
		Where("correlation_id = ? AND outcome = ?", correlationID, enums.VendorTransactionOutcomePending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GetLenderBalanceForUpdate(ctx context.Context, lenderID uuid.UUID) (*models.LenderBalance, error) {
	var row models.LenderBalance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lender_id = ?", lenderID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) SaveLenderBalance(ctx context.Context, balance *models.LenderBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

func (r *repository) GetAccountLimitForUpdate(ctx context.Context, customerID uuid.UUID) (*models.AccountLimit, error) {
	var row models.AccountLimit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) SaveAccountLimit(ctx context.Context, limit *models.AccountLimit) error {
	return r.db.WithContext(ctx).Save(limit).Error
}
