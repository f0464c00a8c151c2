package disbursement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/internal/loans"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/outbox/payloads"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StateMachine drives a disbursement attempt through its lifecycle. Every
// status write is a guarded conditional update, so a callback and a
// reconciliation poll racing on the same attempt resolve to exactly one
// applied transition; the loser observes a no-op.
type StateMachine interface {
	// Attempt starts or resumes the payout for a loan via the given vendor.
	// Returns the in-flight attempt, which may be a pre-existing one.
	Attempt(ctx context.Context, loan *models.Loan, beneficiary *models.Beneficiary) (*models.Disbursement, error)
	// Resolve applies a vendor-reported outcome from a callback or a status
	// poll. Terminal attempts absorb further reports silently.
	Resolve(ctx context.Context, disbursement *models.Disbursement, result vendors.DisbursementResult, source string) error
	// Cancel moves a non-terminal attempt to cancelled.
	Cancel(ctx context.Context, disbursementID uuid.UUID, reason string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.Disbursement, error)
	ListStaleInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]models.Disbursement, error)
}

// ServiceParams collects the state machine's dependencies.
type ServiceParams struct {
	Repo     Repository
	Loans    loans.Service
	Gateways *vendors.Registry
	Ledger   *Ledger
	Events   *outbox.Service
	DB       txRunner
	Flags    config.FeatureFlagsConfig
	Logger   *logger.Logger
}

type stateMachine struct {
	repo     Repository
	loans    loans.Service
	gateways *vendors.Registry
	ledger   *Ledger
	events   *outbox.Service
	db       txRunner
	flags    config.FeatureFlagsConfig
	logg     *logger.Logger
}

// NewStateMachine wires the disbursement state machine.
func NewStateMachine(params ServiceParams) (StateMachine, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("disbursement repository required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan service required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("vendor registry required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &stateMachine{
		repo:     params.Repo,
		loans:    params.Loans,
		gateways: params.Gateways,
		ledger:   params.Ledger,
		events:   params.Events,
		db:       params.DB,
		flags:    params.Flags,
		logg:     params.Logger,
	}, nil
}

func (s *stateMachine) GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *stateMachine) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Disbursement, error) {
	txn, err := s.repo.GetVendorTransactionByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, nil
	}
	return s.repo.GetByID(ctx, txn.DisbursementID)
}

func (s *stateMachine) ListStaleInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]models.Disbursement, error) {
	return s.repo.ListStaleInFlight(ctx, time.Now().Add(-olderThan), limit)
}

func (s *stateMachine) Attempt(ctx context.Context, loan *models.Loan, beneficiary *models.Beneficiary) (*models.Disbursement, error) {
	if loan == nil {
		return nil, fmt.Errorf("loan required")
	}
	if beneficiary == nil {
		return nil, fmt.Errorf("beneficiary required")
	}

	logCtx := s.logg.WithLoanID(ctx, loan.ID.String())

	gateway, ok := s.gateways.Get(beneficiary.Vendor)
	if !ok {
		return nil, fmt.Errorf("no gateway configured for vendor %s", beneficiary.Vendor)
	}

	// An attempt already in flight wins; the unique in-flight index backs
	// this check against concurrent triggers. A pending attempt whose vendor
	// call never went out (failover successor, earlier vendor outage) is
	// resumed instead of duplicated.
	if active, err := s.repo.GetActiveByLoanID(ctx, loan.ID); err != nil {
		return nil, err
	} else if active != nil {
		if active.Status == enums.DisbursementStatusPending && active.Vendor == beneficiary.Vendor {
			issued, err := s.repo.HasVendorTransaction(ctx, active.ID)
			if err != nil {
				return nil, err
			}
			if !issued {
				return active, s.issue(ctx, loan, active, beneficiary, gateway)
			}
			// A call already went out; the true outcome must come from a
			// status poll or callback, never a second payment request.
		}
		s.logg.Info(logCtx, "disbursement already in flight, skipping")
		return active, nil
	}

	attempt := &models.Disbursement{
		LoanID: loan.ID,
		Vendor: gateway.Name(),
		Status: enums.DisbursementStatusPending,
		Amount: loan.Amount,
	}
	if err := s.repo.Create(ctx, attempt); err != nil {
		return nil, err
	}
	if err := s.attachToLoan(ctx, loan, attempt); err != nil {
		return nil, err
	}

	return attempt, s.issue(ctx, loan, attempt, beneficiary, gateway)
}

func (s *stateMachine) attachToLoan(ctx context.Context, loan *models.Loan, attempt *models.Disbursement) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.loans.AttachDisbursement(ctx, tx, loan.ID, attempt.ID)
	})
}

// issue runs the balance pre-check and the vendor call for a pending attempt.
// Vendor HTTP never happens inside a database transaction.
func (s *stateMachine) issue(ctx context.Context, loan *models.Loan, attempt *models.Disbursement, beneficiary *models.Beneficiary, gateway vendors.Gateway) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"loan_id":         loan.ID.String(),
		"disbursement_id": attempt.ID.String(),
		"vendor":          gateway.Name().String(),
	})

	balance := gateway.CheckBalance(ctx, attempt.Amount)
	if balance.Failure.IsZero() && !balance.Sufficient {
		return s.deferInsufficientBalance(ctx, attempt, balance)
	}
	if !balance.Failure.IsZero() {
		// Balance unknown is not a reason to block the payout.
		s.logg.Warn(s.logg.WithField(logCtx, "vendor_error", balance.Failure.Message), "balance pre-check failed, proceeding")
	}

	correlationID := vendors.NewCorrelationID(gateway.Name())
	result := gateway.Disburse(ctx, vendors.DisbursementRequest{
		DisbursementID:        attempt.ID,
		LoanID:                loan.ID,
		CorrelationID:         correlationID,
		BeneficiaryExternalID: beneficiary.ExternalID,
		AccountNumber:         beneficiary.AccountNumber,
		BankCode:              beneficiary.BankCode,
		Amount:                attempt.Amount,
		Remark:                "loan disbursement " + loan.ID.String(),
	})

	switch {
	case result.Completed || result.Failed:
		// Synchronous outcome, resolve straight away.
		if err := s.markInitiated(ctx, loan, attempt, result); err != nil {
			return err
		}
		return s.Resolve(ctx, attempt, result, "disburse response")
	case result.Accepted:
		return s.markInitiated(ctx, loan, attempt, result)
	case result.Failure.Kind == vendors.FailureClient:
		reason := result.Failure.Message
		return s.fail(ctx, attempt, reason)
	default:
		// Timeout or vendor-side error: the payment may have gone through, so
		// the attempt stays pending for reconciliation instead of re-issuing.
		s.logg.Warn(s.logg.WithCorrelationID(logCtx, correlationID), "disburse outcome unknown, leaving for reconciliation")
		return nil
	}
}

func (s *stateMachine) markInitiated(ctx context.Context, loan *models.Loan, attempt *models.Disbursement, result vendors.DisbursementResult) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatus(ctx, attempt.ID, enums.DisbursementStatusPending, enums.DisbursementStatusInitiated, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if result.Reference != "" {
			if err := repo.SetExternalRef(ctx, attempt.ID, result.Reference); err != nil {
				return err
			}
		}
		if _, err := s.loans.UpdateLoanStatusAndHistory(ctx, tx, loan.ID, loan.Status, enums.LoanStatusFundDisbursalOngoing, "disbursement initiated"); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisbursementInitiated,
			AggregateType: enums.AggregateDisbursement,
			AggregateID:   attempt.ID,
			Data: payloads.DisbursementInitiatedEvent{
				DisbursementID: attempt.ID,
				LoanID:         loan.ID,
				Vendor:         attempt.Vendor,
				Amount:         attempt.Amount.StringFixed(2),
				CorrelationID:  result.CorrelationID,
			},
		})
	})
	if err != nil {
		return err
	}
	attempt.Status = enums.DisbursementStatusInitiated
	if result.Reference != "" {
		ref := result.Reference
		attempt.ExternalRef = &ref
	}
	return nil
}

func (s *stateMachine) deferInsufficientBalance(ctx context.Context, attempt *models.Disbursement, balance vendors.BalanceResult) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"disbursement_id": attempt.ID.String(),
		"vendor":          attempt.Vendor.String(),
		"balance":         balance.BalanceString(),
	})
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatus(ctx, attempt.ID, attempt.Status, enums.DisbursementStatusInsufficientBalance, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorBalanceLow,
			AggregateType: enums.AggregateVendor,
			AggregateID:   attempt.ID,
			Data: payloads.VendorBalanceLowEvent{
				Vendor:    attempt.Vendor,
				Balance:   balance.BalanceString(),
				Threshold: attempt.Amount.StringFixed(2),
				CheckedAt: time.Now(),
			},
		})
	})
	if err != nil {
		return err
	}
	attempt.Status = enums.DisbursementStatusInsufficientBalance
	s.logg.Warn(logCtx, "vendor balance insufficient, disbursement deferred")
	return nil
}

func (s *stateMachine) Resolve(ctx context.Context, disbursement *models.Disbursement, result vendors.DisbursementResult, source string) error {
	if disbursement == nil {
		return fmt.Errorf("disbursement required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"disbursement_id": disbursement.ID.String(),
		"loan_id":         disbursement.LoanID.String(),
		"vendor":          disbursement.Vendor.String(),
		"source":          source,
	})

	if disbursement.Status.IsTerminal() {
		s.logg.Info(logCtx, "disbursement already terminal, report absorbed")
		return nil
	}

	switch {
	case result.Completed:
		return s.complete(ctx, disbursement, result)
	case result.Failed:
		reason := result.Failure.Message
		if reason == "" {
			reason = "vendor reported failure"
		}
		return s.fail(ctx, disbursement, reason)
	case result.NotFound:
		// The caller decides whether not-found is terminal; recon passes it
		// here only once the attempt is past the reconciliation timeout.
		return s.fail(ctx, disbursement, "transaction not found at vendor")
	default:
		s.logg.Info(logCtx, "disbursement still pending at vendor")
		return nil
	}
}

func (s *stateMachine) complete(ctx context.Context, disbursement *models.Disbursement, result vendors.DisbursementResult) error {
	loan, err := s.loans.GetLoan(ctx, disbursement.LoanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return fmt.Errorf("loan %s not found for disbursement %s", disbursement.LoanID, disbursement.ID)
	}

	applied := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatus(ctx, disbursement.ID, disbursement.Status, enums.DisbursementStatusCompleted, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true

		if result.Reference != "" && disbursement.ExternalRef == nil {
			if err := repo.SetExternalRef(ctx, disbursement.ID, result.Reference); err != nil {
				return err
			}
		}
		if result.CorrelationID != "" {
			if _, err := repo.ResolveVendorTransaction(ctx, result.CorrelationID, enums.VendorTransactionOutcomeSuccess, result.Raw); err != nil {
				return err
			}
		}
		if err := s.ledger.CommitCompleted(ctx, tx, loan, disbursement); err != nil {
			return err
		}
		if _, err := s.loans.UpdateLoanStatusAndHistory(ctx, tx, loan.ID, loan.Status, enums.LoanStatusFundDisbursed, "disbursement completed"); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisbursementCompleted,
			AggregateType: enums.AggregateDisbursement,
			AggregateID:   disbursement.ID,
			Data: payloads.DisbursementCompletedEvent{
				DisbursementID: disbursement.ID,
				LoanID:         loan.ID,
				Vendor:         disbursement.Vendor,
				Amount:         disbursement.Amount.StringFixed(2),
				Reference:      result.Reference,
				CompletedAt:    time.Now(),
			},
		})
	})
	if err != nil {
		return err
	}
	if applied {
		disbursement.Status = enums.DisbursementStatusCompleted
	}
	return nil
}

// fail marks the attempt terminal for its vendor and evaluates failover.
func (s *stateMachine) fail(ctx context.Context, disbursement *models.Disbursement, reason string) error {
	loan, err := s.loans.GetLoan(ctx, disbursement.LoanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return fmt.Errorf("loan %s not found for disbursement %s", disbursement.LoanID, disbursement.ID)
	}

	applied := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatus(ctx, disbursement.ID, disbursement.Status, enums.DisbursementStatusFailed, &reason)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisbursementFailed,
			AggregateType: enums.AggregateDisbursement,
			AggregateID:   disbursement.ID,
			Data: payloads.DisbursementFailedEvent{
				DisbursementID: disbursement.ID,
				LoanID:         loan.ID,
				Vendor:         disbursement.Vendor,
				Reason:         reason,
			},
		})
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	disbursement.Status = enums.DisbursementStatusFailed

	return s.evaluateFailover(ctx, loan, disbursement, reason)
}

// evaluateFailover either re-attempts the payout under the next configured
// vendor or marks the loan terminally failed, exactly once.
func (s *stateMachine) evaluateFailover(ctx context.Context, loan *models.Loan, failed *models.Disbursement, reason string) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"loan_id":         loan.ID.String(),
		"disbursement_id": failed.ID.String(),
		"vendor":          failed.Vendor.String(),
	})

	var alternate vendors.Gateway
	if s.flags.FailoverEnabled {
		if gw, ok := s.gateways.Alternate(failed.Vendor); ok {
			alternate = gw
		}
	}

	if alternate == nil {
		applied := false
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.loans.UpdateLoanStatusAndHistory(ctx, tx, loan.ID, loan.Status, enums.LoanStatusFundDisbursalFailed, reason)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			applied = true
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLoanDisbursalFailed,
				AggregateType: enums.AggregateLoan,
				AggregateID:   loan.ID,
				Data: payloads.LoanDisbursalFailedEvent{
					LoanID:         loan.ID,
					DisbursementID: failed.ID,
					Reason:         reason,
				},
			})
		})
		if err != nil {
			return err
		}
		if applied {
			s.logg.Warn(logCtx, "no alternate vendor, loan disbursal failed")
		}
		return nil
	}

	successor := &models.Disbursement{
		LoanID: loan.ID,
		Vendor: alternate.Name(),
		Status: enums.DisbursementStatusPending,
		Amount: failed.Amount,
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, successor); err != nil {
			return err
		}
		if err := repo.SetSupersededBy(ctx, failed.ID, successor.ID); err != nil {
			return err
		}
		if err := s.loans.AttachDisbursement(ctx, tx, loan.ID, successor.ID); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisbursementFailedOver,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Data: payloads.DisbursementFailedOverEvent{
				LoanID:             loan.ID,
				FromDisbursementID: failed.ID,
				ToDisbursementID:   successor.ID,
				FromVendor:         failed.Vendor,
				ToVendor:           successor.Vendor,
			},
		})
	})
	if err != nil {
		return err
	}
	failed.SupersededBy = &successor.ID
	s.logg.Info(s.logg.WithField(logCtx, "alternate_vendor", successor.Vendor.String()), "disbursement failed over to alternate vendor")

	// The successor needs the alternate vendor's beneficiary; the coordinator
	// owns that flow, so the new attempt stays pending until re-triggered.
	return nil
}

func (s *stateMachine) Cancel(ctx context.Context, disbursementID uuid.UUID, reason string) error {
	disbursement, err := s.repo.GetByID(ctx, disbursementID)
	if err != nil {
		return err
	}
	if disbursement == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("disbursement %s not found", disbursementID))
	}
	if disbursement.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("disbursement %s is already %s", disbursementID, disbursement.Status))
	}

	loan, err := s.loans.GetLoan(ctx, disbursement.LoanID)
	if err != nil {
		return err
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatus(ctx, disbursement.ID, disbursement.Status, enums.DisbursementStatusCancelled, &reason)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if loan != nil {
			if _, err := s.loans.UpdateLoanStatusAndHistory(ctx, tx, loan.ID, loan.Status, enums.LoanStatusCancelled, reason); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisbursementCancelled,
			AggregateType: enums.AggregateDisbursement,
			AggregateID:   disbursement.ID,
			Data: payloads.DisbursementCancelledEvent{
				DisbursementID: disbursement.ID,
				LoanID:         disbursement.LoanID,
				Reason:         reason,
			},
		})
	})
}
