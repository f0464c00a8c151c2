package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/internal/cron"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/outbox/payloads"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BalanceJobParams configures the vendor float check.
type BalanceJobParams struct {
	Logger   *logger.Logger
	Gateways *vendors.Registry
	Events   *outbox.Service
	DB       txRunner
	Config   config.DisbursementConfig
}

// balanceJob checks every configured vendor's float against the configured
// threshold and raises an operational alert when it drops below. A missing
// threshold disables the sweep silently.
type balanceJob struct {
	logg     *logger.Logger
	gateways *vendors.Registry
	events   *outbox.Service
	db       txRunner
	cfg      config.DisbursementConfig
}

// NewBalanceJob builds the vendor balance sweep.
func NewBalanceJob(params BalanceJobParams) (cron.Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("vendor registry required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	return &balanceJob{
		logg:     params.Logger,
		gateways: params.Gateways,
		events:   params.Events,
		db:       params.DB,
		cfg:      params.Config,
	}, nil
}

func (j *balanceJob) Name() string { return "vendor-balance-check" }

func (j *balanceJob) Run(ctx context.Context) error {
	threshold, ok := j.cfg.MinBalance()
	if !ok {
		return nil
	}

	var errs []error
	for _, gateway := range j.gateways.All() {
		if err := j.check(ctx, gateway, threshold); err != nil {
			errs = append(errs, fmt.Errorf("vendor %s: %w", gateway.Name(), err))
		}
	}
	return multierr.Combine(errs...)
}

func (j *balanceJob) check(ctx context.Context, gateway vendors.Gateway, threshold decimal.Decimal) error {
	logCtx := j.logg.WithVendor(ctx, gateway.Name().String())

	result := gateway.CheckBalance(ctx, threshold)
	if !result.Failure.IsZero() {
		return fmt.Errorf("balance check: %s", result.Failure.Message)
	}
	if result.Sufficient {
		return nil
	}

	j.logg.Warn(j.logg.WithField(logCtx, "balance", result.BalanceString()), "vendor balance below threshold")
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorBalanceLow,
			AggregateType: enums.AggregateVendor,
			AggregateID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(gateway.Name().String())),
			Data: payloads.VendorBalanceLowEvent{
				Vendor:    gateway.Name(),
				Balance:   result.BalanceString(),
				Threshold: threshold.StringFixed(2),
				CheckedAt: time.Now(),
			},
		})
	})
}
