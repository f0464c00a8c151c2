package disbursement

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
)

// Ledger commits the balance side effects of a completed disbursement: the
// lender's available balance is debited and the borrower's credit limit is
// consumed. Both rows are taken under FOR UPDATE so a callback and a
// reconciliation poll racing to declare success cannot debit twice; the
// guarded disbursement status write upstream makes the second caller a no-op
// before it ever reaches the ledger.
type Ledger struct {
	repo Repository
	logg *logger.Logger
}

// NewLedger wires the balance-commit step.
func NewLedger(repo Repository, logg *logger.Logger) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("disbursement repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Ledger{repo: repo, logg: logg}, nil
}

// CommitCompleted applies the lender debit and limit consumption inside the
// caller's transaction. A missing balance or limit row is logged and skipped
// rather than failing the completion; the loan subsystem owns seeding them.
func (l *Ledger) CommitCompleted(ctx context.Context, tx *gorm.DB, loan *models.Loan, disbursement *models.Disbursement) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := l.repo.WithTx(tx)

	balance, err := repo.GetLenderBalanceForUpdate(ctx, loan.LenderID)
	if err != nil {
		return fmt.Errorf("locking lender balance: %w", err)
	}
	if balance == nil {
		l.logg.Warn(l.logg.WithLoanID(ctx, loan.ID.String()), "no lender balance row, skipping debit")
	} else {
		balance.AvailableBalance = balance.AvailableBalance.Sub(disbursement.Amount)
		balance.OutstandingPrincipal = balance.OutstandingPrincipal.Add(disbursement.Amount)
		if err := repo.SaveLenderBalance(ctx, balance); err != nil {
			return fmt.Errorf("debiting lender balance: %w", err)
		}
	}

	limit, err := repo.GetAccountLimitForUpdate(ctx, loan.CustomerID)
	if err != nil {
		return fmt.Errorf("locking account limit: %w", err)
	}
	if limit == nil {
		l.logg.Warn(l.logg.WithCustomerID(ctx, loan.CustomerID.String()), "no account limit row, skipping consumption")
		return nil
	}
	limit.AvailableLimit = limit.AvailableLimit.Sub(disbursement.Amount)
	limit.UsedLimit = limit.UsedLimit.Add(disbursement.Amount)
	if err := repo.SaveAccountLimit(ctx, limit); err != nil {
		return fmt.Errorf("consuming account limit: %w", err)
	}
	return nil
}
