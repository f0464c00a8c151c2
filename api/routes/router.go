package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adityawarman/danaflow-backend/api/controllers"
	webhookcontrollers "github.com/adityawarman/danaflow-backend/api/controllers/webhooks"
	"github.com/adityawarman/danaflow-backend/api/middleware"
	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/redis"
)

type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        redis.Pinger
	Callbacks    callbacks.Service
	Claims       callbacks.Repository
	Guard        *callbacks.IdempotencyGuard
	Registry     beneficiary.Registry
	StateMachine disbursement.StateMachine
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})

	r.Route("/api/v1/callbacks", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.PartnerAuth(cfg.PartnerJWT, logg))
			r.Post("/ayoconnect/beneficiary", webhookcontrollers.AyoconnectBeneficiary(params.Callbacks, params.Guard, logg))
			r.Post("/ayoconnect/unsuccessful", webhookcontrollers.AyoconnectUnsuccessful(params.Callbacks, params.Guard, logg))
			r.Post("/ayoconnect/disbursement", webhookcontrollers.AyoconnectDisbursement(params.Callbacks, params.Guard, logg))
			r.Post("/xfers/disbursement", webhookcontrollers.XfersDisbursement(params.Callbacks, params.Guard, logg))
		})

		// Faspay authenticates with its payload signature, not a bearer token.
		r.Post("/faspay/disbursement", webhookcontrollers.FaspayDisbursement(params.Callbacks, params.Guard, cfg.Faspay, logg))
	})

	r.Route("/api/ops/v1", func(r chi.Router) {
		r.Use(middleware.PartnerAuth(cfg.PartnerJWT, logg))
		r.Post("/beneficiaries/{beneficiaryId}/reset-retry", controllers.OpsResetBeneficiaryRetry(params.Registry, logg))
		r.Get("/beneficiaries/{beneficiaryId}/retrigger-claims", controllers.OpsListRetriggerClaims(params.Claims, logg))
		r.Post("/disbursements/{disbursementId}/cancel", controllers.OpsCancelDisbursement(params.StateMachine, logg))
	})

	return r
}
