package disbursement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/loans"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

// Coordinator is the entry point the loan lifecycle calls to move a payout
// forward. Missing prerequisites (loan, destination, beneficiary not yet
// active) are logged skips, not errors: callbacks and later triggers finish
// the job.
type Coordinator interface {
	Trigger(ctx context.Context, loanID uuid.UUID) error
}

type coordinator struct {
	loans        loans.Service
	beneficiary  beneficiary.Registry
	stateMachine StateMachine
	gateways     *vendors.Registry
	cfg          config.DisbursementConfig
	logg         *logger.Logger
}

// NewCoordinator wires the loan disbursement coordinator.
func NewCoordinator(loanSvc loans.Service, registry beneficiary.Registry, sm StateMachine, gateways *vendors.Registry, cfg config.DisbursementConfig, logg *logger.Logger) (Coordinator, error) {
	if loanSvc == nil {
		return nil, fmt.Errorf("loan service required")
	}
	if registry == nil {
		return nil, fmt.Errorf("beneficiary registry required")
	}
	if sm == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if gateways == nil {
		return nil, fmt.Errorf("vendor registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &coordinator{
		loans:        loanSvc,
		beneficiary:  registry,
		stateMachine: sm,
		gateways:     gateways,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

func (c *coordinator) Trigger(ctx context.Context, loanID uuid.UUID) error {
	logCtx := c.logg.WithLoanID(ctx, loanID.String())

	loan, err := c.loans.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		c.logg.Info(logCtx, "loan not found, nothing to disburse")
		return nil
	}
	if !loan.Status.IsDisbursable() {
		c.logg.Info(c.logg.WithField(logCtx, "loan_status", loan.Status.String()), "loan not in a disbursable status, skipping")
		return nil
	}

	if jailed, until := c.jailed(ctx, loan); jailed {
		c.logg.Info(c.logg.WithField(logCtx, "jailed_until", until.Format(time.RFC3339)), "loan is jailed after a failed attempt, skipping")
		return nil
	}

	destination, err := c.loans.GetBankAccountDestination(ctx, loan)
	if err != nil {
		return err
	}
	if destination == nil {
		c.logg.Info(logCtx, "loan has no bank account destination yet, skipping")
		return nil
	}

	ben, err := c.ensureBeneficiary(ctx, loan, destination)
	if err != nil {
		return err
	}
	if ben == nil || ben.Status != enums.BeneficiaryStatusActive {
		// Registration was issued (or is pending a callback); the beneficiary
		// callback path re-triggers this loan once the vendor activates it.
		c.logg.Info(logCtx, "beneficiary not active yet, disbursement deferred")
		return nil
	}

	_, err = c.stateMachine.Attempt(ctx, loan, ben)
	return err
}

// jailed reports whether the loan's latest attempt failed inside the cool-off
// window, along with when the jail lifts.
func (c *coordinator) jailed(ctx context.Context, loan *models.Loan) (bool, time.Time) {
	period := c.cfg.JailPeriod()
	if period <= 0 || loan.DisbursementID == nil {
		return false, time.Time{}
	}
	attempt, err := c.stateMachine.GetByID(ctx, *loan.DisbursementID)
	if err != nil || attempt == nil || attempt.Status != enums.DisbursementStatusFailed {
		return false, time.Time{}
	}
	until := attempt.UpdatedAt.Add(period)
	if time.Now().Before(until) {
		return true, until
	}
	return false, time.Time{}
}

// ensureBeneficiary resolves the payout beneficiary for the loan's active
// attempt vendor, falling back to the primary vendor for a fresh loan.
func (c *coordinator) ensureBeneficiary(ctx context.Context, loan *models.Loan, destination *models.BankAccountDestination) (*models.Beneficiary, error) {
	vendor, ok := c.resolveVendor(ctx, loan)
	if !ok {
		c.logg.Warn(ctx, "no vendors configured, skipping disbursement")
		return nil, nil
	}

	return c.beneficiary.GetOrCreate(ctx, beneficiary.GetOrCreateInput{
		CustomerID:    loan.CustomerID,
		Vendor:        vendor,
		AccountNumber: destination.AccountNumber,
		BankCode:      destination.BankCode,
		AccountName:   destination.NameInBank,
	})
}

// resolveVendor prefers the vendor chosen for an existing pending attempt,
// so a failed-over loan registers with the alternate vendor rather than the
// primary again.
func (c *coordinator) resolveVendor(ctx context.Context, loan *models.Loan) (enums.DisbursementVendor, bool) {
	if loan.DisbursementID != nil {
		attempt, err := c.stateMachine.GetByID(ctx, *loan.DisbursementID)
		if err == nil && attempt != nil && attempt.Status.IsInFlight() {
			return attempt.Vendor, true
		}
	}
	gateway, ok := c.gateways.Primary()
	if !ok {
		return "", false
	}
	return gateway.Name(), true
}
