package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/adityawarman/danaflow-backend/api/responses"
	"github.com/adityawarman/danaflow-backend/api/validators"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/ayoconnect"
)

// idempotencyGuard suppresses redelivered webhook events at the edge.
type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type ayoconnectBeneficiaryPayload struct {
	BeneficiaryID string `json:"beneficiaryId" validate:"required"`
	Status        string `json:"accountStatus" validate:"required"`
	Reason        string `json:"reason"`
}

// AyoconnectBeneficiary applies beneficiary registration status callbacks.
// Vendors redeliver at-least-once; anything the processor absorbs as a no-op
// still acks 200 to stop the retry storm.
func AyoconnectBeneficiary(svc callbacks.Service, guard idempotencyGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload ayoconnectBeneficiaryPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := eventKey("ayoconnect", "beneficiary", payload.BeneficiaryID, payload.Status)
		seen, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		err = svc.ProcessBeneficiary(ctx, callbacks.BeneficiaryCallback{
			Vendor:     enums.VendorAyoconnect,
			ExternalID: payload.BeneficiaryID,
			StatusCode: payload.Status,
			Reason:     payload.Reason,
		})
		ackOrFail(ctx, logg, w, guard, eventID, err)
	}
}

type ayoconnectUnsuccessfulPayload struct {
	BeneficiaryID string `json:"beneficiaryId" validate:"required"`
}

// AyoconnectUnsuccessful handles the vendor's "registration outcome lost"
// webhook, which carries only the vendor-side beneficiary id.
func AyoconnectUnsuccessful(svc callbacks.Service, guard idempotencyGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload ayoconnectUnsuccessfulPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := eventKey("ayoconnect", "unsuccessful", payload.BeneficiaryID)
		seen, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		err = svc.ProcessUnsuccessful(ctx, enums.VendorAyoconnect, payload.BeneficiaryID)
		ackOrFail(ctx, logg, w, guard, eventID, err)
	}
}

type ayoconnectDisbursementPayload struct {
	TransactionID string `json:"transactionId" validate:"required"`
	Status        string `json:"status" validate:"required"`
	Reference     string `json:"referenceNumber"`
	ErrorCode     string `json:"errorCode"`
	Message       string `json:"message"`
}

// AyoconnectDisbursement applies disbursement outcome callbacks keyed by the
// correlation id issued at disburse time.
func AyoconnectDisbursement(svc callbacks.Service, guard idempotencyGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload ayoconnectDisbursementPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := eventKey("ayoconnect", "disbursement", payload.TransactionID, payload.Status)
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
			Vendor:        enums.VendorAyoconnect,
			CorrelationID: payload.TransactionID,
			Result: ayoconnect.ParseDisbursementCallback(
				payload.TransactionID,
				payload.Status,
				payload.Reference,
				payload.ErrorCode,
				payload.Message,
			),
		})
		ackOrFail(ctx, logg, w, guard, eventID, err)
	}
}

// ackOrFail implements the callback ack contract: validation rejections are
// logged and acked 200 so the vendor stops retrying a payload that will
// never apply; transient failures release the idempotency mark and surface
// an error status so the vendor redelivers.
func ackOrFail(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, guard idempotencyGuard, eventID string, err error) {
	if err == nil {
		responses.WriteSuccess(w, nil)
		return
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
		if logg != nil {
			logg.Warn(logg.WithField(ctx, "reject_reason", typed.Message()), "callback rejected")
		}
		responses.WriteSuccess(w, nil)
		return
	}
	if delErr := guard.Delete(ctx, eventID); delErr != nil && logg != nil {
		logg.Error(ctx, "release idempotency mark", delErr)
	}
	responses.WriteError(ctx, logg, w, err)
}

func eventKey(parts ...string) string {
	return strings.Join(parts, ":")
}
