package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/adityawarman/danaflow-backend/api/routes"
	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	"github.com/adityawarman/danaflow-backend/internal/loans"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/migrate"
	"github.com/adityawarman/danaflow-backend/pkg/outbox"
	"github.com/adityawarman/danaflow-backend/pkg/redis"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/ayoconnect"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/faspay"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/xfers"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	mappers := map[enums.DisbursementVendor]callbacks.StatusMapper{
		enums.VendorAyoconnect: ayoconnect.ParseBeneficiaryStatus,
	}
	claims := callbacks.NewRepository(dbClient.DB())
	callbackSvc, err := callbacks.NewService(registry, claims, loanSvc, machine, coordinator, mappers, cfg.Disbursement, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create callback service", err)
		os.Exit(1)
	}

	guard, err := callbacks.NewIdempotencyGuard(redisClient, cfg.Eventing.CallbackIdempotencyTTL, "vendor-callbacks")
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Callbacks:    callbackSvc,
			Claims:       claims,
			Guard:        guard,
			Registry:     registry,
			StateMachine: machine,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
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
