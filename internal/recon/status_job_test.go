package recon

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/internal/cron"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	"github.com/adityawarman/danaflow-backend/internal/loans"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

func setupReconTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:recon_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS loans (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  lender_id TEXT NOT NULL,
  status TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  disbursement_id TEXT,
  bank_account_destination_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS loan_histories (
  id TEXT PRIMARY KEY,
  loan_id TEXT NOT NULL,
  old_status TEXT NOT NULL,
  new_status TEXT NOT NULL,
  change_reason TEXT NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS disbursements (
  id TEXT PRIMARY KEY,
  loan_id TEXT NOT NULL,
  vendor TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount NUMERIC NOT NULL,
  external_ref TEXT,
  failure_reason TEXT,
  superseded_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS vendor_transactions (
  id TEXT PRIMARY KEY,
  correlation_id TEXT NOT NULL UNIQUE,
  vendor TEXT NOT NULL,
  disbursement_id TEXT NOT NULL,
  raw_payload TEXT,
  outcome TEXT NOT NULL DEFAULT 'pending',
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS lender_balances (
  id TEXT PRIMARY KEY,
  lender_id TEXT NOT NULL UNIQUE,
  available_balance NUMERIC NOT NULL,
  outstanding_principal NUMERIC NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS account_limits (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL UNIQUE,
  available_limit NUMERIC NOT NULL,
  used_limit NUMERIC NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeVendor struct {
	vendor         enums.DisbursementVendor
	balanceResult  vendors.BalanceResult
	disburseResult vendors.DisbursementResult
	statusResult   vendors.DisbursementResult
	balanceCalls   int
	statusCalls    int
}

func (g *fakeVendor) Name() enums.DisbursementVendor { return g.vendor }

func (g *fakeVendor) CreateOrUpdateBeneficiary(ctx context.Context, req vendors.BeneficiaryRequest) vendors.BeneficiaryResult {
	return vendors.BeneficiaryResult{Accepted: true}
}

func (g *fakeVendor) Disburse(ctx context.Context, req vendors.DisbursementRequest) vendors.DisbursementResult {
	result := g.disburseResult
	if result.CorrelationID == "" {
		result.CorrelationID = req.CorrelationID
	}
	return result
}

func (g *fakeVendor) CheckDisburseStatus(ctx context.Context, correlationID string) vendors.DisbursementResult {
	g.statusCalls++
	result := g.statusResult
	result.CorrelationID = correlationID
	return result
}

func (g *fakeVendor) CheckBalance(ctx context.Context, minRequired decimal.Decimal) vendors.BalanceResult {
	g.balanceCalls++
	return g.balanceResult
}

type stubCoordinator struct {
	triggered []uuid.UUID
}

func (c *stubCoordinator) Trigger(ctx context.Context, loanID uuid.UUID) error {
	c.triggered = append(c.triggered, loanID)
	return nil
}

type reconFixture struct {
	db          *gorm.DB
	repo        disbursement.Repository
	machine     disbursement.StateMachine
	coordinator *stubCoordinator
	job         cron.Job
}

func newStatusJobFixture(t *testing.T, gateway *fakeVendor) *reconFixture {
	t.Helper()

	db := setupReconTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	repo := disbursement.NewRepository(db)
	recorder := disbursement.NewRecorder(repo)
	gateways := vendors.NewRegistry(vendors.WithRecorder(gateway, recorder, logg))

	loanSvc, err := loans.NewService(loans.NewRepository(db), logg)
	require.NoError(t, err)

	ledger, err := disbursement.NewLedger(repo, logg)
	require.NoError(t, err)

	machine, err := disbursement.NewStateMachine(disbursement.ServiceParams{
		Repo:     repo,
		Loans:    loanSvc,
		Gateways: gateways,
		Ledger:   ledger,
		Events:   outbox.NewService(outbox.NewRepository(db), logg),
		DB:       gormTxRunner{db: db},
		Logger:   logg,
	})
	require.NoError(t, err)

	coordinator := &stubCoordinator{}
	job, err := NewStatusJob(StatusJobParams{
		Logger:       logg,
		Repo:         repo,
		StateMachine: machine,
		Coordinator:  coordinator,
		Gateways:     gateways,
		Timeout:      time.Minute,
		Limit:        50,
	})
	require.NoError(t, err)

	return &reconFixture{db: db, repo: repo, machine: machine, coordinator: coordinator, job: job}
}

func (f *reconFixture) seedLoan(t *testing.T, amount string) *models.Loan {
	t.Helper()

	loan := &models.Loan{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		LenderID:   uuid.New(),
		Status:     enums.LoanStatusLenderApproved,
		Amount:     decimal.RequireFromString(amount),
	}
	require.NoError(t, f.db.Create(loan).Error)
	require.NoError(t, f.db.Create(&models.LenderBalance{
		ID:               uuid.New(),
		LenderID:         loan.LenderID,
		AvailableBalance: decimal.RequireFromString("100000000"),
	}).Error)
	require.NoError(t, f.db.Create(&models.AccountLimit{
		ID:             uuid.New(),
		CustomerID:     loan.CustomerID,
		AvailableLimit: decimal.RequireFromString("100000000"),
	}).Error)
	return loan
}

func (f *reconFixture) backdate(t *testing.T, id uuid.UUID, age time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Exec(
		"UPDATE disbursements SET updated_at = ? WHERE id = ?",
		time.Now().Add(-age), id,
	).Error)
}

func (f *reconFixture) attemptStatus(t *testing.T, id uuid.UUID) enums.DisbursementStatus {
	t.Helper()

	var row models.Disbursement
	require.NoError(t, f.db.First(&row, "id = ?", id).Error)
	return row.Status
}

func initiatedAttempt(t *testing.T, f *reconFixture) (*models.Loan, *models.Disbursement) {
	t.Helper()

	loan := f.seedLoan(t, "1500000")
	ben := &models.Beneficiary{
		ID:            uuid.New(),
		CustomerID:    loan.CustomerID,
		Vendor:        enums.VendorAyoconnect,
		ExternalID:    "EXT-001",
		AccountNumber: "1234567890",
		BankCode:      "014",
		Status:        enums.BeneficiaryStatusActive,
	}
	attempt, err := f.machine.Attempt(context.Background(), loan, ben)
	require.NoError(t, err)
	require.Equal(t, enums.DisbursementStatusInitiated, attempt.Status)
	return loan, attempt
}

func TestStatusJobResolvesCompletedPoll(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status: enums.BalanceStatusSufficient, Sufficient: true,
			Balance: decimal.RequireFromString("100000000"),
		},
		disburseResult: vendors.DisbursementResult{Accepted: true, Reference: "AYO-REF-1"},
		statusResult:   vendors.DisbursementResult{Completed: true, Reference: "AYO-REF-1"},
	}
	f := newStatusJobFixture(t, gateway)
	loan, attempt := initiatedAttempt(t, f)
	f.backdate(t, attempt.ID, 3*time.Hour)

	require.NoError(t, f.job.Run(context.Background()))

	require.Equal(t, enums.DisbursementStatusCompleted, f.attemptStatus(t, attempt.ID))
	require.Equal(t, 1, gateway.statusCalls)

	var reloaded models.Loan
	require.NoError(t, f.db.First(&reloaded, "id = ?", loan.ID).Error)
	require.Equal(t, enums.LoanStatusFundDisbursed, reloaded.Status)
}

func TestStatusJobResolvesNotFoundAsFailed(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status: enums.BalanceStatusSufficient, Sufficient: true,
			Balance: decimal.RequireFromString("100000000"),
		},
		disburseResult: vendors.DisbursementResult{Accepted: true, Reference: "AYO-REF-1"},
		statusResult:   vendors.DisbursementResult{NotFound: true},
	}
	f := newStatusJobFixture(t, gateway)
	loan, attempt := initiatedAttempt(t, f)
	f.backdate(t, attempt.ID, 3*time.Hour)

	require.NoError(t, f.job.Run(context.Background()))

	require.Equal(t, enums.DisbursementStatusFailed, f.attemptStatus(t, attempt.ID))

	var reloaded models.Loan
	require.NoError(t, f.db.First(&reloaded, "id = ?", loan.ID).Error)
	require.Equal(t, enums.LoanStatusFundDisbursalFailed, reloaded.Status)
}

func TestStatusJobLeavesUnreachableVendor(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status: enums.BalanceStatusSufficient, Sufficient: true,
			Balance: decimal.RequireFromString("100000000"),
		},
		disburseResult: vendors.DisbursementResult{Accepted: true, Reference: "AYO-REF-1"},
		statusResult: vendors.DisbursementResult{
			Failure: vendors.ServiceFailure("503", "gateway maintenance"),
		},
	}
	f := newStatusJobFixture(t, gateway)
	_, attempt := initiatedAttempt(t, f)
	f.backdate(t, attempt.ID, 3*time.Hour)

	require.NoError(t, f.job.Run(context.Background()))

	// Unknown outcome stays in flight for the next sweep.
	require.Equal(t, enums.DisbursementStatusInitiated, f.attemptStatus(t, attempt.ID))
}

func TestStatusJobSkipsFreshAttempts(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status: enums.BalanceStatusSufficient, Sufficient: true,
			Balance: decimal.RequireFromString("100000000"),
		},
		disburseResult: vendors.DisbursementResult{Accepted: true, Reference: "AYO-REF-1"},
		statusResult:   vendors.DisbursementResult{Completed: true},
	}
	f := newStatusJobFixture(t, gateway)
	_, attempt := initiatedAttempt(t, f)

	require.NoError(t, f.job.Run(context.Background()))

	require.Zero(t, gateway.statusCalls)
	require.Equal(t, enums.DisbursementStatusInitiated, f.attemptStatus(t, attempt.ID))
}

func TestStatusJobRetriggersAttemptWithoutVendorCall(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{vendor: enums.VendorAyoconnect}
	f := newStatusJobFixture(t, gateway)
	loan := f.seedLoan(t, "1500000")

	// A failover successor sits pending without any vendor transaction.
	attempt := &models.Disbursement{
		LoanID: loan.ID,
		Vendor: enums.VendorXfers,
		Status: enums.DisbursementStatusPending,
		Amount: loan.Amount,
	}
	require.NoError(t, f.repo.Create(context.Background(), attempt))
	f.backdate(t, attempt.ID, 3*time.Hour)

	require.NoError(t, f.job.Run(context.Background()))

	require.Equal(t, []uuid.UUID{loan.ID}, f.coordinator.triggered)
	require.Zero(t, gateway.statusCalls)
	require.Equal(t, enums.DisbursementStatusPending, f.attemptStatus(t, attempt.ID))
}

func deferredAttempt(t *testing.T, f *reconFixture) (*models.Loan, *models.Disbursement) {
	t.Helper()

	loan := f.seedLoan(t, "1500000")
	ben := &models.Beneficiary{
		ID:            uuid.New(),
		CustomerID:    loan.CustomerID,
		Vendor:        enums.VendorAyoconnect,
		ExternalID:    "EXT-001",
		AccountNumber: "1234567890",
		BankCode:      "014",
		Status:        enums.BeneficiaryStatusActive,
	}
	attempt, err := f.machine.Attempt(context.Background(), loan, ben)
	require.NoError(t, err)
	require.Equal(t, enums.DisbursementStatusInsufficientBalance, f.attemptStatus(t, attempt.ID))
	return loan, attempt
}

func TestStatusJobResumesDeferredAfterBalanceRestored(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status:  enums.BalanceStatusInsufficient,
			Balance: decimal.RequireFromString("1000"),
		},
	}
	f := newStatusJobFixture(t, gateway)
	loan, attempt := deferredAttempt(t, f)

	gateway.balanceResult = vendors.BalanceResult{
		Status: enums.BalanceStatusSufficient, Sufficient: true,
		Balance: decimal.RequireFromString("100000000"),
	}

	require.NoError(t, f.job.Run(context.Background()))

	require.Equal(t, []uuid.UUID{loan.ID}, f.coordinator.triggered)
	require.Equal(t, enums.DisbursementStatusPending, f.attemptStatus(t, attempt.ID))
	require.Zero(t, gateway.statusCalls)
}

func TestStatusJobLeavesDeferredWhileBalanceLow(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status:  enums.BalanceStatusInsufficient,
			Balance: decimal.RequireFromString("1000"),
		},
	}
	f := newStatusJobFixture(t, gateway)
	_, attempt := deferredAttempt(t, f)

	require.NoError(t, f.job.Run(context.Background()))

	require.Empty(t, f.coordinator.triggered)
	require.Equal(t, enums.DisbursementStatusInsufficientBalance, f.attemptStatus(t, attempt.ID))
}

func TestStatusJobKeepsDeferredParkedBehindActiveSuccessor(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status:  enums.BalanceStatusInsufficient,
			Balance: decimal.RequireFromString("1000"),
		},
	}
	f := newStatusJobFixture(t, gateway)
	loan, attempt := deferredAttempt(t, f)

	successor := &models.Disbursement{
		LoanID: loan.ID,
		Vendor: enums.VendorXfers,
		Status: enums.DisbursementStatusPending,
		Amount: loan.Amount,
	}
	require.NoError(t, f.repo.Create(context.Background(), successor))

	gateway.balanceResult = vendors.BalanceResult{
		Status: enums.BalanceStatusSufficient, Sufficient: true,
		Balance: decimal.RequireFromString("100000000"),
	}

	require.NoError(t, f.job.Run(context.Background()))

	require.Empty(t, f.coordinator.triggered)
	require.Equal(t, enums.DisbursementStatusInsufficientBalance, f.attemptStatus(t, attempt.ID))
}
