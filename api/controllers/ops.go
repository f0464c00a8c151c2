package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/api/responses"
	"github.com/adityawarman/danaflow-backend/api/validators"
	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
)

// OpsResetBeneficiaryRetry clears the retry counter so operators can rearm
// vendor registration for a beneficiary that exhausted its attempts.
func OpsResetBeneficiaryRetry(registry beneficiary.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := uuid.Parse(chi.URLParam(r, "beneficiaryId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid beneficiary id"))
			return
		}

		if err := registry.ResetRetry(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

type retriggerClaimResponse struct {
	LoanID    uuid.UUID `json:"loan_id"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// OpsListRetriggerClaims lists the loan re-trigger claims recorded for a
// beneficiary, so operators can see which stalled loans its vendor
// activation already resumed.
func OpsListRetriggerClaims(claims callbacks.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := uuid.Parse(chi.URLParam(r, "beneficiaryId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid beneficiary id"))
			return
		}

		rows, err := claims.ListClaims(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]retriggerClaimResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, retriggerClaimResponse{
				LoanID:    row.LoanID,
				Processed: row.Processed,
				CreatedAt: row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

type cancelDisbursementRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// OpsCancelDisbursement cancels a non-terminal disbursement attempt on
// operator request.
func OpsCancelDisbursement(machine disbursement.StateMachine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := uuid.Parse(chi.URLParam(r, "disbursementId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid disbursement id"))
			return
		}

		var body cancelDisbursementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := machine.Cancel(ctx, id, body.Reason); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}
