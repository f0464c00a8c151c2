package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/cron"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	"github.com/adityawarman/danaflow-backend/internal/loans"
	"github.com/adityawarman/danaflow-backend/internal/recon"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/metrics"
	"github.com/adityawarman/danaflow-backend/pkg/migrate"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/redis"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/ayoconnect"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/faspay"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/xfers"
)

const lockKeyFormat = "recon-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "recon-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "recon-worker"

	logg = logger.New(logger.Options{
		ServiceName: "recon-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	disbRepo := disbursement.NewRepository(dbClient.DB())
	recorder := disbursement.NewRecorder(disbRepo)
	gateways, err := buildGateways(context.Background(), cfg, recorder, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build vendor gateways", err)
		os.Exit(1)
	}

	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	loanSvc, err := loans.NewService(loans.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create loan service", err)
		os.Exit(1)
	}

	registry, err := beneficiary.NewRegistry(beneficiary.NewRepository(dbClient.DB()), dbClient, gateways, events, cfg.Disbursement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create beneficiary registry", err)
		os.Exit(1)
	}

	ledger, err := disbursement.NewLedger(disbRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger", err)
		os.Exit(1)
	}

	machine, err := disbursement.NewStateMachine(disbursement.ServiceParams{
		Repo:     disbRepo,
		Loans:    loanSvc,
		Gateways: gateways,
		Ledger:   ledger,
		Events:   events,
		DB:       dbClient,
		Flags:    cfg.FeatureFlags,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create state machine", err)
		os.Exit(1)
	}

	coordinator, err := disbursement.NewCoordinator(loanSvc, registry, machine, gateways, cfg.Disbursement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create coordinator", err)
		os.Exit(1)
	}

	statusJob, err := recon.NewStatusJob(recon.StatusJobParams{
		Logger:       logg,
		Repo:         disbRepo,
		StateMachine: machine,
		Coordinator:  coordinator,
		Gateways:     gateways,
		Timeout:      cfg.Disbursement.ReconciliationTimeout(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create status job", err)
		os.Exit(1)
	}

	balanceJob, err := recon.NewBalanceJob(recon.BalanceJobParams{
		Logger:   logg,
		Gateways: gateways,
		Events:   events,
		DB:       dbClient,
		Config:   cfg.Disbursement,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create balance job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(statusJob, balanceJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Disbursement.ReconInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting reconciliation worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconciliation worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconciliation worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

// buildGateways wires every configured vendor client, each wrapped so its
// disburse calls are journaled as vendor transactions.
func buildGateways(ctx context.Context, cfg *config.Config, recorder vendors.TransactionRecorder, logg *logger.Logger) (*vendors.Registry, error) {
	timeout := cfg.Disbursement.VendorHTTPTimeout
	var wired []vendors.Gateway

	if cfg.Ayoconnect.Enabled() {
		client, err := ayoconnect.NewClient(ctx, cfg.Ayoconnect, timeout, logg)
		if err != nil {
			return nil, err
		}
		wired = append(wired, vendors.WithRecorder(client, recorder, logg))
	}
	if cfg.Xfers.Enabled() {
		client, err := xfers.NewClient(ctx, cfg.Xfers, timeout, logg)
		if err != nil {
			return nil, err
		}
		wired = append(wired, vendors.WithRecorder(client, recorder, logg))
	}
	if cfg.Faspay.Enabled() {
		client, err := faspay.NewClient(ctx, cfg.Faspay, timeout, logg)
		if err != nil {
			return nil, err
		}
		wired = append(wired, vendors.WithRecorder(client, recorder, logg))
	}

	return vendors.NewRegistry(wired...), nil
}
