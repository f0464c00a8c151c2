package webhooks

import (
	"net/http"

	"github.com/adityawarman/danaflow-backend/api/responses"
	"github.com/adityawarman/danaflow-backend/api/validators"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/faspay"
)

type faspayDisbursementPayload struct {
	TrxID        string `json:"trx_id" validate:"required"`
	ResponseCode string `json:"response_code" validate:"required"`
	ResponseDesc string `json:"response_desc"`
	StanRef      string `json:"stan_ref"`
	Signature    string `json:"signature" validate:"required"`
}

// FaspayDisbursement applies Faspay transfer status callbacks. Faspay signs
// the payload with its legacy sha1(md5(...)) scheme instead of a bearer
// token, so the signature is checked here rather than in middleware.
func FaspayDisbursement(svc callbacks.Service, guard idempotencyGuard, cfg config.FaspayConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload faspayDisbursementPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if payload.Signature != faspay.Signature(cfg.UserID, cfg.Password, payload.TrxID) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		eventID := eventKey("faspay", "disbursement", payload.TrxID, payload.ResponseCode)
		seen, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		err = svc.ProcessDisbursement(ctx, callbacks.DisbursementCallback{
			Vendor:        enums.VendorFaspay,
			CorrelationID: payload.TrxID,
			Result: faspay.ParseDisbursementCallback(
				payload.TrxID,
				payload.ResponseCode,
				payload.ResponseDesc,
				payload.StanRef,
			),
		})
		ackOrFail(ctx, logg, w, guard, eventID, err)
	}
}
