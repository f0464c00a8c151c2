package vendors

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
)

// TransactionRecorder persists the vendor-transaction audit trail: one row per
// disbursement attempt, updated when a poll or callback resolves it.
type TransactionRecorder interface {
	RecordAttempt(ctx context.Context, vendor enums.DisbursementVendor, disbursementID uuid.UUID, correlationID string, raw json.RawMessage) error
	RecordOutcome(ctx context.Context, correlationID string, outcome enums.VendorTransactionOutcome, raw json.RawMessage) error
}

// RecordingGateway decorates a Gateway so every disburse and status call
// leaves a VendorTransaction trace. Audit write failures are logged, never
// surfaced; the typed result always reaches the caller.
type RecordingGateway struct {
	inner    Gateway
	recorder TransactionRecorder
	logg     *logger.Logger
}

// WithRecorder wraps the gateway with transaction recording.
func WithRecorder(inner Gateway, recorder TransactionRecorder, logg *logger.Logger) *RecordingGateway {
	return &RecordingGateway{inner: inner, recorder: recorder, logg: logg}
}

func (g *RecordingGateway) Name() enums.DisbursementVendor {
	return g.inner.Name()
}

func (g *RecordingGateway) CreateOrUpdateBeneficiary(ctx context.Context, req BeneficiaryRequest) BeneficiaryResult {
	return g.inner.CreateOrUpdateBeneficiary(ctx, req)
}

func (g *RecordingGateway) Disburse(ctx context.Context, req DisbursementRequest) DisbursementResult {
	result := g.inner.Disburse(ctx, req)
	correlationID := result.CorrelationID
	if correlationID == "" {
		correlationID = req.CorrelationID
	}
	if err := g.recorder.RecordAttempt(ctx, g.inner.Name(), req.DisbursementID, correlationID, result.Raw); err != nil {
		g.logError(ctx, "record disbursement attempt", err)
	}
	if outcome := result.Outcome(); outcome != enums.VendorTransactionOutcomePending {
		if err := g.recorder.RecordOutcome(ctx, correlationID, outcome, result.Raw); err != nil {
			g.logError(ctx, "record disbursement outcome", err)
		}
	}
	return result
}

func (g *RecordingGateway) CheckDisburseStatus(ctx context.Context, correlationID string) DisbursementResult {
	result := g.inner.CheckDisburseStatus(ctx, correlationID)
	if err := g.recorder.RecordOutcome(ctx, correlationID, result.Outcome(), result.Raw); err != nil {
		g.logError(ctx, "record status poll outcome", err)
	}
	return result
}

func (g *RecordingGateway) CheckBalance(ctx context.Context, minRequired decimal.Decimal) BalanceResult {
	return g.inner.CheckBalance(ctx, minRequired)
}

func (g *RecordingGateway) logError(ctx context.Context, msg string, err error) {
	if g.logg == nil {
		return
	}
	logCtx := g.logg.WithVendor(ctx, g.inner.Name().String())
	g.logg.Error(logCtx, msg, err)
}
