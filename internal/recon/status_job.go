package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/adityawarman/danaflow-backend/internal/cron"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

const (
	defaultStatusSweepLimit = 200
	defaultStatusTimeout    = 2 * time.Hour
)

// StatusJobParams configures the in-flight disbursement sweep.
type StatusJobParams struct {
	Logger       *logger.Logger
	Repo         disbursement.Repository
	StateMachine disbursement.StateMachine
	Coordinator  disbursement.Coordinator
	Gateways     *vendors.Registry
	Timeout      time.Duration
	Limit        int
}

// statusJob polls vendors for disbursements that stayed in flight past the
// reconciliation timeout, and re-arms attempts deferred on insufficient
// vendor balance once the float recovers. Re-running against an
// already-terminal attempt is a no-op; the state machine absorbs it.
type statusJob struct {
	logg         *logger.Logger
	repo         disbursement.Repository
	stateMachine disbursement.StateMachine
	coordinator  disbursement.Coordinator
	gateways     *vendors.Registry
	timeout      time.Duration
	limit        int
}

// NewStatusJob builds the disbursement status reconciliation job.
func NewStatusJob(params StatusJobParams) (cron.Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("disbursement repository required")
	}
	if params.StateMachine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("vendor registry required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultStatusTimeout
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultStatusSweepLimit
	}
	return &statusJob{
		logg:         params.Logger,
		repo:         params.Repo,
		stateMachine: params.StateMachine,
		coordinator:  params.Coordinator,
		gateways:     params.Gateways,
		timeout:      timeout,
		limit:        limit,
	}, nil
}

func (j *statusJob) Name() string { return "disbursement-status-reconcile" }

func (j *statusJob) Run(ctx context.Context) error {
	var errs []error

	stale, err := j.stateMachine.ListStaleInFlight(ctx, j.timeout, j.limit)
	if err != nil {
		errs = append(errs, fmt.Errorf("listing stale disbursements: %w", err))
	} else if len(stale) > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", len(stale)), "reconciling stale disbursements")
		for i := range stale {
			attempt := stale[i]
			if err := j.reconcile(ctx, attempt.ID); err != nil {
				errs = append(errs, fmt.Errorf("disbursement %s: %w", attempt.ID, err))
			}
		}
	}

	deferred, err := j.repo.ListDeferred(ctx, j.limit)
	if err != nil {
		errs = append(errs, fmt.Errorf("listing deferred disbursements: %w", err))
	} else {
		for i := range deferred {
			attempt := deferred[i]
			if err := j.resumeDeferred(ctx, &attempt); err != nil {
				errs = append(errs, fmt.Errorf("deferred disbursement %s: %w", attempt.ID, err))
			}
		}
	}

	return multierr.Combine(errs...)
}

// resumeDeferred re-arms an attempt parked on insufficient balance once the
// vendor float covers it again, then routes the loan back through the
// coordinator. Attempts whose loan already has a live successor stay parked.
func (j *statusJob) resumeDeferred(ctx context.Context, attempt *models.Disbursement) error {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"disbursement_id": attempt.ID.String(),
		"loan_id":         attempt.LoanID.String(),
		"vendor":          attempt.Vendor.String(),
	})

	gateway, ok := j.gateways.Get(attempt.Vendor)
	if !ok {
		j.logg.Warn(logCtx, "no gateway for deferred attempt vendor, skipping")
		return nil
	}

	balance := gateway.CheckBalance(ctx, attempt.Amount)
	if !balance.Failure.IsZero() {
		j.logg.Warn(j.logg.WithField(logCtx, "vendor_error", balance.Failure.Message), "balance check failed, attempt stays deferred")
		return nil
	}
	if !balance.Sufficient {
		return nil
	}

	active, err := j.repo.GetActiveByLoanID(ctx, attempt.LoanID)
	if err != nil {
		return err
	}
	if active != nil {
		return nil
	}

	ok, err = j.repo.UpdateStatus(ctx, attempt.ID,
		enums.DisbursementStatusInsufficientBalance, enums.DisbursementStatusPending, nil)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	j.logg.Info(logCtx, "vendor balance restored, re-arming deferred attempt")
	return j.coordinator.Trigger(ctx, attempt.LoanID)
}

func (j *statusJob) reconcile(ctx context.Context, id uuid.UUID) error {
	// Re-read inside the sweep so a callback that landed mid-cycle wins.
	attempt, err := j.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if attempt == nil || !attempt.Status.IsInFlight() {
		return nil
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"disbursement_id": attempt.ID.String(),
		"loan_id":         attempt.LoanID.String(),
		"vendor":          attempt.Vendor.String(),
	})

	txn, err := j.repo.GetLatestVendorTransaction(ctx, attempt.ID)
	if err != nil {
		return err
	}
	if txn == nil {
		// The vendor call never went out (stalled failover successor); route
		// it back through the coordinator instead of polling.
		j.logg.Info(logCtx, "stale attempt with no vendor call, re-triggering")
		return j.coordinator.Trigger(ctx, attempt.LoanID)
	}

	gateway, ok := j.gateways.Get(attempt.Vendor)
	if !ok {
		j.logg.Warn(logCtx, "no gateway configured for vendor, skipping")
		return nil
	}

	result := gateway.CheckDisburseStatus(ctx, txn.CorrelationID)
	if !result.Failure.IsZero() && !result.NotFound {
		// Vendor unreachable; the next sweep retries.
		j.logg.Warn(j.logg.WithField(logCtx, "vendor_error", result.Failure.Message), "status poll failed, leaving for next sweep")
		return nil
	}
	return j.stateMachine.Resolve(ctx, attempt, result, "reconciliation")
}
