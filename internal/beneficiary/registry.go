package beneficiary

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/pkg/config"
	dbpkg "github.com/adityawarman/danaflow-backend/pkg/db"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/outbox/payloads"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

// Registry is the single mutation point for beneficiary state: status
// transitions, retry bookkeeping, and vendor re-registration all funnel
// through here.
type Registry interface {
	GetOrCreate(ctx context.Context, input GetOrCreateInput) (*models.Beneficiary, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error)
	GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error)
	// UpdateBeneficiaryStatus applies the transition and appends a history
	// row. Returns false, with no writes, when newStatus equals the current
	// status or a concurrent writer already moved the row.
	UpdateBeneficiaryStatus(ctx context.Context, beneficiary *models.Beneficiary, newStatus enums.BeneficiaryStatus, reason string) (bool, error)
	// IncrementRetryAndMaybeRequest re-issues vendor registration while under
	// the retry limit; at the limit it resets the counter to zero and
	// suppresses the request. Returns whether a request was issued.
	IncrementRetryAndMaybeRequest(ctx context.Context, beneficiary *models.Beneficiary) (bool, error)
	ResetRetry(ctx context.Context, id uuid.UUID) error
}

// GetOrCreateInput carries the customer context needed for vendor-side
// registration.
type GetOrCreateInput struct {
	CustomerID    uuid.UUID
	Vendor        enums.DisbursementVendor
	AccountNumber string
	BankCode      string
	AccountName   string
	PhoneNumber   string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registry struct {
	repo     Repository
	db       txRunner
	gateways *vendors.Registry
	events   *outbox.Service
	cfg      config.DisbursementConfig
	logg     *logger.Logger
}

// NewRegistry wires the beneficiary registry.
func NewRegistry(repo Repository, dbClient txRunner, gateways *vendors.Registry, events *outbox.Service, cfg config.DisbursementConfig, logg *logger.Logger) (Registry, error) {
	if repo == nil {
		return nil, fmt.Errorf("beneficiary repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("vendor registry required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &registry{
		repo:     repo,
		db:       dbClient,
		gateways: gateways,
		events:   events,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

func (r *registry) GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("beneficiary id is required")
	}
	return r.repo.GetByID(ctx, id)
}

func (r *registry) GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external id is required")
	}
	return r.repo.GetByExternalID(ctx, vendor, externalID)
}

// GetOrCreate returns the (customer, vendor) beneficiary, creating the row
// and issuing vendor registration on first sight. A vendor failure leaves the
// row in UNKNOWN; the caller defers and a later callback or retry resolves it.
func (r *registry) GetOrCreate(ctx context.Context, input GetOrCreateInput) (*models.Beneficiary, error) {
	if input.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("customer id is required")
	}
	if !input.Vendor.IsValid() {
		return nil, fmt.Errorf("invalid vendor %q", input.Vendor)
	}

	existing, err := r.repo.GetByCustomerAndVendor(ctx, input.CustomerID, input.Vendor)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	row := &models.Beneficiary{
		CustomerID:    input.CustomerID,
		Vendor:        input.Vendor,
		AccountNumber: input.AccountNumber,
		BankCode:      input.BankCode,
		Status:        enums.BeneficiaryStatusUnknown,
	}
	if err := r.repo.Create(ctx, row); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_beneficiaries_customer_vendor") {
			return r.repo.GetByCustomerAndVendor(ctx, input.CustomerID, input.Vendor)
		}
		return nil, err
	}

	r.requestRegistration(ctx, row, input.AccountName, input.PhoneNumber)
	return r.repo.GetByID(ctx, row.ID)
}

// requestRegistration issues create_or_update_beneficiary and folds the typed
// result into local state. Failures are recorded, never raised.
func (r *registry) requestRegistration(ctx context.Context, row *models.Beneficiary, accountName, phoneNumber string) {
	gateway, ok := r.gateways.Get(row.Vendor)
	if !ok {
		r.logg.Warn(r.logg.WithVendor(ctx, row.Vendor.String()), "no gateway configured for vendor, skipping registration")
		return
	}

	result := gateway.CreateOrUpdateBeneficiary(ctx, vendors.BeneficiaryRequest{
		CustomerID:    row.CustomerID,
		AccountNumber: row.AccountNumber,
		BankCode:      row.BankCode,
		AccountName:   accountName,
		PhoneNumber:   phoneNumber,
	})
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"beneficiary_id": row.ID.String(),
		"customer_id":    row.CustomerID.String(),
		"vendor":         row.Vendor.String(),
	})
	if !result.Failure.IsZero() {
		r.logg.Warn(r.logg.WithField(logCtx, "vendor_error", result.Failure.Message), "beneficiary registration not accepted")
		return
	}

	if result.ExternalID != "" {
		if err := r.repo.SetExternalID(ctx, row.ID, result.ExternalID); err != nil {
			r.logg.Error(logCtx, "persisting beneficiary external id", err)
		}
	}
	if result.Status != enums.BeneficiaryStatusUnknown && result.Status != row.Status {
		if _, err := r.UpdateBeneficiaryStatus(ctx, row, result.Status, "vendor registration response"); err != nil {
			r.logg.Error(logCtx, "applying registration status", err)
		}
	}
}

func (r *registry) UpdateBeneficiaryStatus(ctx context.Context, beneficiary *models.Beneficiary, newStatus enums.BeneficiaryStatus, reason string) (bool, error) {
	if beneficiary == nil {
		return false, fmt.Errorf("beneficiary is required")
	}
	if !newStatus.IsValid() {
		return false, fmt.Errorf("invalid beneficiary status %q", newStatus)
	}
	if newStatus == beneficiary.Status {
		return false, nil
	}

	applied := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)

		var reasonPtr *string
		if reason != "" {
			reasonPtr = &reason
		}
		ok, err := repo.UpdateStatus(ctx, beneficiary.ID, beneficiary.Status, newStatus, reasonPtr)
		if err != nil {
			return err
		}
		if !ok {
			// Concurrent writer already moved the row; this delivery is a no-op.
			return nil
		}
		applied = true

		history := &models.BeneficiaryHistory{
			BeneficiaryID: beneficiary.ID,
			OldStatus:     beneficiary.Status,
			NewStatus:     newStatus,
			Reason:        reasonPtr,
		}
		if err := repo.CreateHistory(ctx, history); err != nil {
			return err
		}

		// Retry bookkeeping restarts on any transition away from DISABLED.
		if newStatus != enums.BeneficiaryStatusDisabled && beneficiary.RetryCount > 0 {
			if _, err := repo.UpdateRetryCount(ctx, beneficiary.ID, beneficiary.RetryCount, 0); err != nil {
				return err
			}
		}

		return r.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBeneficiaryStatusMoved,
			AggregateType: enums.AggregateBeneficiary,
			AggregateID:   beneficiary.ID,
			Data: payloads.BeneficiaryStatusMovedEvent{
				BeneficiaryID: beneficiary.ID,
				CustomerID:    beneficiary.CustomerID,
				Vendor:        beneficiary.Vendor,
				FromStatus:    beneficiary.Status,
				ToStatus:      newStatus,
				Reason:        reason,
			},
		})
	})
	if err != nil {
		return false, err
	}
	if applied {
		beneficiary.Status = newStatus
		if newStatus != enums.BeneficiaryStatusDisabled {
			beneficiary.RetryCount = 0
		}
	}
	return applied, nil
}

func (r *registry) IncrementRetryAndMaybeRequest(ctx context.Context, beneficiary *models.Beneficiary) (bool, error) {
	if beneficiary == nil {
		return false, fmt.Errorf("beneficiary is required")
	}
	limit := r.cfg.BeneficiaryRetryLimit
	if limit <= 0 {
		// Retry machinery disabled; never auto-issue.
		return false, nil
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"beneficiary_id": beneficiary.ID.String(),
		"customer_id":    beneficiary.CustomerID.String(),
		"vendor":         beneficiary.Vendor.String(),
		"retry_count":    beneficiary.RetryCount,
	})

	if beneficiary.RetryCount >= limit {
		// At the limit: reset to zero and suppress until something external
		// (a status transition or an operator) restarts the cycle.
		err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := r.repo.WithTx(tx)
			if _, err := repo.UpdateRetryCount(ctx, beneficiary.ID, beneficiary.RetryCount, 0); err != nil {
				return err
			}
			return r.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBeneficiaryRetryLimit,
				AggregateType: enums.AggregateBeneficiary,
				AggregateID:   beneficiary.ID,
				Data: payloads.BeneficiaryRetryLimitEvent{
					BeneficiaryID: beneficiary.ID,
					CustomerID:    beneficiary.CustomerID,
					Vendor:        beneficiary.Vendor,
					RetryLimit:    limit,
				},
			})
		})
		if err != nil {
			return false, err
		}
		beneficiary.RetryCount = 0
		r.logg.Warn(logCtx, "beneficiary retry limit reached, suppressing registration")
		return false, nil
	}

	ok, err := r.repo.UpdateRetryCount(ctx, beneficiary.ID, beneficiary.RetryCount, beneficiary.RetryCount+1)
	if err != nil {
		return false, err
	}
	if !ok {
		// Concurrent caller already incremented; let that one carry the request.
		return false, nil
	}
	beneficiary.RetryCount++

	r.requestRegistration(ctx, beneficiary, "", "")
	r.logg.Info(logCtx, "beneficiary registration re-issued")
	return true, nil
}

func (r *registry) ResetRetry(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("beneficiary id is required")
	}
	row, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("beneficiary %s not found", id))
	}
	if row.RetryCount == 0 {
		return nil
	}
	_, err = r.repo.UpdateRetryCount(ctx, id, row.RetryCount, 0)
	return err
}
