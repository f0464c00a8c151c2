package disbursement

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

type coordLoans struct {
	loan        *models.Loan
	destination *models.BankAccountDestination
}

func (f *coordLoans) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return f.loan, nil
}

func (f *coordLoans) UpdateLoanStatusAndHistory(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, fromStatus, newStatus enums.LoanStatus, changeReason string) (bool, error) {
	return true, nil
}

func (f *coordLoans) AttachDisbursement(ctx context.Context, tx *gorm.DB, loanID, disbursementID uuid.UUID) error {
	return nil
}

func (f *coordLoans) GetBankAccountDestination(ctx context.Context, loan *models.Loan) (*models.BankAccountDestination, error) {
	return f.destination, nil
}

func (f *coordLoans) ListRetriggerableLoans(ctx context.Context, customerID uuid.UUID) ([]models.Loan, error) {
	return nil, nil
}

type coordRegistry struct {
	beneficiary *models.Beneficiary
}

func (f *coordRegistry) GetOrCreate(ctx context.Context, input beneficiary.GetOrCreateInput) (*models.Beneficiary, error) {
	return f.beneficiary, nil
}

func (f *coordRegistry) GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	return f.beneficiary, nil
}

func (f *coordRegistry) GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error) {
	return f.beneficiary, nil
}

func (f *coordRegistry) UpdateBeneficiaryStatus(ctx context.Context, ben *models.Beneficiary, newStatus enums.BeneficiaryStatus, reason string) (bool, error) {
	return false, nil
}

func (f *coordRegistry) IncrementRetryAndMaybeRequest(ctx context.Context, ben *models.Beneficiary) (bool, error) {
	return false, nil
}

func (f *coordRegistry) ResetRetry(ctx context.Context, id uuid.UUID) error {
	return nil
}

type coordStateMachine struct {
	attempt      *models.Disbursement
	attemptCalls int
}

func (f *coordStateMachine) Attempt(ctx context.Context, loan *models.Loan, ben *models.Beneficiary) (*models.Disbursement, error) {
	f.attemptCalls++
	return nil, nil
}

func (f *coordStateMachine) Resolve(ctx context.Context, disbursement *models.Disbursement, result vendors.DisbursementResult, source string) error {
	return nil
}

func (f *coordStateMachine) Cancel(ctx context.Context, disbursementID uuid.UUID, reason string) error {
	return nil
}

func (f *coordStateMachine) GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error) {
	return f.attempt, nil
}

func (f *coordStateMachine) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Disbursement, error) {
	return f.attempt, nil
}

func (f *coordStateMachine) ListStaleInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]models.Disbursement, error) {
	return nil, nil
}

func newCoordinatorFixture(t *testing.T, cfg config.DisbursementConfig, loan *models.Loan, attempt *models.Disbursement) (Coordinator, *coordStateMachine) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	gateways := vendors.NewRegistry(&fakeVendor{vendor: enums.VendorAyoconnect, balanceResult: sufficientBalance()})
	machine := &coordStateMachine{attempt: attempt}

	loanSvc := &coordLoans{
		loan: loan,
		destination: &models.BankAccountDestination{
			AccountNumber: "1234567890",
			BankCode:      "014",
			NameInBank:    "Budi Santoso",
		},
	}
	registry := &coordRegistry{beneficiary: activeBeneficiary(enums.VendorAyoconnect)}

	coordinator, err := NewCoordinator(loanSvc, registry, machine, gateways, cfg, logg)
	require.NoError(t, err)
	return coordinator, machine
}

func jailTestLoan(attemptID *uuid.UUID) *models.Loan {
	return &models.Loan{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		Status:         enums.LoanStatusFundDisbursalFailed,
		DisbursementID: attemptID,
	}
}

func TestTriggerSkipsJailedLoan(t *testing.T) {
	attemptID := uuid.New()
	attempt := &models.Disbursement{
		ID:        attemptID,
		Status:    enums.DisbursementStatusFailed,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	coordinator, machine := newCoordinatorFixture(t, config.DisbursementConfig{JailDays: 7}, jailTestLoan(&attemptID), attempt)

	require.NoError(t, coordinator.Trigger(context.Background(), uuid.New()))
	require.Zero(t, machine.attemptCalls)
}

func TestTriggerProceedsAfterJailExpires(t *testing.T) {
	attemptID := uuid.New()
	attempt := &models.Disbursement{
		ID:        attemptID,
		Status:    enums.DisbursementStatusFailed,
		UpdatedAt: time.Now().Add(-8 * 24 * time.Hour),
	}
	coordinator, machine := newCoordinatorFixture(t, config.DisbursementConfig{JailDays: 7}, jailTestLoan(&attemptID), attempt)

	require.NoError(t, coordinator.Trigger(context.Background(), uuid.New()))
	require.Equal(t, 1, machine.attemptCalls)
}

func TestTriggerJailDisabledByDefault(t *testing.T) {
	attemptID := uuid.New()
	attempt := &models.Disbursement{
		ID:        attemptID,
		Status:    enums.DisbursementStatusFailed,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	coordinator, machine := newCoordinatorFixture(t, config.DisbursementConfig{}, jailTestLoan(&attemptID), attempt)

	require.NoError(t, coordinator.Trigger(context.Background(), uuid.New()))
	require.Equal(t, 1, machine.attemptCalls)
}
