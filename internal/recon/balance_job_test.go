package recon

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adityawarman/danaflow-backend/internal/cron"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

func newBalanceJobFixture(t *testing.T, cfg config.DisbursementConfig, gateways ...vendors.Gateway) (cron.Job, *gorm.DB) {
	t.Helper()

	db := setupReconTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	job, err := NewBalanceJob(BalanceJobParams{
		Logger:   logg,
		Gateways: vendors.NewRegistry(gateways...),
		Events:   outbox.NewService(outbox.NewRepository(db), logg),
		DB:       gormTxRunner{db: db},
		Config:   cfg,
	})
	require.NoError(t, err)
	return job, db
}

func balanceAlerts(t *testing.T, db *gorm.DB) []models.OutboxEvent {
	t.Helper()

	var rows []models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", enums.EventVendorBalanceLow).Find(&rows).Error)
	return rows
}

func TestBalanceJobEmitsAlertBelowThreshold(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status:     enums.BalanceStatusInsufficient,
			Sufficient: false,
			Balance:    decimal.RequireFromString("4960000"),
		},
	}
	job, db := newBalanceJobFixture(t, config.DisbursementConfig{MinBalanceThreshold: "150000000.00"}, gateway)

	require.NoError(t, job.Run(context.Background()))

	require.Equal(t, 1, gateway.balanceCalls)
	require.Len(t, balanceAlerts(t, db), 1)
}

func TestBalanceJobSufficientFloatEmitsNothing(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Status:     enums.BalanceStatusSufficient,
			Sufficient: true,
			Balance:    decimal.RequireFromString("2000000000"),
		},
	}
	job, db := newBalanceJobFixture(t, config.DisbursementConfig{MinBalanceThreshold: "150000000.00"}, gateway)

	require.NoError(t, job.Run(context.Background()))
	require.Empty(t, balanceAlerts(t, db))
}

func TestBalanceJobDisabledWithoutThreshold(t *testing.T) {
	t.Parallel()

	gateway := &fakeVendor{vendor: enums.VendorAyoconnect}
	job, db := newBalanceJobFixture(t, config.DisbursementConfig{}, gateway)

	require.NoError(t, job.Run(context.Background()))
	require.Zero(t, gateway.balanceCalls)
	require.Empty(t, balanceAlerts(t, db))
}

func TestBalanceJobUnreachableVendorReportsError(t *testing.T) {
	t.Parallel()

	broken := &fakeVendor{
		vendor: enums.VendorAyoconnect,
		balanceResult: vendors.BalanceResult{
			Failure: vendors.ServiceFailure("503", "gateway maintenance"),
		},
	}
	healthy := &fakeVendor{
		vendor: enums.VendorXfers,
		balanceResult: vendors.BalanceResult{
			Status:     enums.BalanceStatusInsufficient,
			Sufficient: false,
			Balance:    decimal.RequireFromString("1000000"),
		},
	}
	job, db := newBalanceJobFixture(t, config.DisbursementConfig{MinBalanceThreshold: "150000000.00"}, broken, healthy)

	// One broken vendor does not mask the other's alert.
	require.Error(t, job.Run(context.Background()))
	require.Len(t, balanceAlerts(t, db), 1)
}
