package webhooks

import (
	"net/http"

	"github.com/adityawarman/danaflow-backend/api/responses"
	"github.com/adityawarman/danaflow-backend/api/validators"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/xfers"
)

type xfersDisbursementPayload struct {
	ID            string `json:"id" validate:"required"`
	Status        string `json:"status" validate:"required"`
	FailureReason string `json:"failure_reason"`
}

// XfersDisbursement applies Xfers payout status callbacks. The payout id is
// our correlation id.
func XfersDisbursement(svc callbacks.Service, guard idempotencyGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload xfersDisbursementPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := eventKey("xfers", "disbursement", payload.ID, payload.Status)
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
			Vendor:        enums.VendorXfers,
			CorrelationID: payload.ID,
			Result:        xfers.ParseDisbursementCallback(payload.ID, payload.Status, payload.FailureReason),
		})
		ackOrFail(ctx, logg, w, guard, eventID, err)
	}
}
