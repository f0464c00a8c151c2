package disbursement

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Recorder adapts the repository to the gateway-side transaction audit hook.
type Recorder struct {
	repo Repository
}

// NewRecorder builds the vendor transaction recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) RecordAttempt(ctx context.Context, vendor enums.DisbursementVendor, disbursementID uuid.UUID, correlationID string, raw json.RawMessage) error {
	existing, err := r.repo.GetVendorTransactionByCorrelationID(ctx, correlationID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return r.repo.CreateVendorTransaction(ctx, &models.VendorTransaction{
		CorrelationID:  correlationID,
		Vendor:         vendor,
		DisbursementID: disbursementID,
		RawPayload:     raw,
		Outcome:        enums.VendorTransactionOutcomePending,
	})
}

func (r *Recorder) RecordOutcome(ctx context.Context, correlationID string, outcome enums.VendorTransactionOutcome, raw json.RawMessage) error {
	if outcome == enums.VendorTransactionOutcomePending {
		return nil
	}
	_, err := r.repo.ResolveVendorTransaction(ctx, correlationID, outcome, raw)
	return err
}
