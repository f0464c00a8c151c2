package callbacks

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/disbursement"
	"github.com/adityawarman/danaflow-backend/internal/loans"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

// StatusMapper translates a vendor's beneficiary status code. The second
// return is false for codes the vendor never documented; those callbacks are
// rejected without touching state.
type StatusMapper func(code string) (enums.BeneficiaryStatus, bool)

// BeneficiaryCallback is a parsed inbound beneficiary webhook.
type BeneficiaryCallback struct {
	Vendor     enums.DisbursementVendor
	ExternalID string
	StatusCode string
	Reason     string
}

// DisbursementCallback is a parsed inbound disbursement webhook. Result is
// already folded into the gateway's typed form by the vendor-specific
// controller.
type DisbursementCallback struct {
	Vendor        enums.DisbursementVendor
	CorrelationID string
	Result        vendors.DisbursementResult
}

// Service applies inbound vendor callbacks idempotently. Vendors redeliver
// at-least-once and out of order; every path here tolerates both.
type Service interface {
	ProcessBeneficiary(ctx context.Context, callback BeneficiaryCallback) error
	// ProcessUnsuccessful handles webhooks the vendor could not correlate to
	// a registration outcome, keyed by the vendor-side customer id.
	ProcessUnsuccessful(ctx context.Context, vendor enums.DisbursementVendor, externalID string) error
	ProcessDisbursement(ctx context.Context, callback DisbursementCallback) error
}

type service struct {
	registry     beneficiary.Registry
	repo         Repository
	loans        loans.Service
	stateMachine disbursement.StateMachine
	coordinator  disbursement.Coordinator
	mappers      map[enums.DisbursementVendor]StatusMapper
	cfg          config.DisbursementConfig
	logg         *logger.Logger
}

// NewService wires the callback processor.
func NewService(registry beneficiary.Registry, repo Repository, loanSvc loans.Service, sm disbursement.StateMachine, coordinator disbursement.Coordinator, mappers map[enums.DisbursementVendor]StatusMapper, cfg config.DisbursementConfig, logg *logger.Logger) (Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("beneficiary registry required")
	}
	if repo == nil {
		return nil, fmt.Errorf("callback repository required")
	}
	if loanSvc == nil {
		return nil, fmt.Errorf("loan service required")
	}
	if sm == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	if len(mappers) == 0 {
		return nil, fmt.Errorf("at least one status mapper required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		registry:     registry,
		repo:         repo,
		loans:        loanSvc,
		stateMachine: sm,
		coordinator:  coordinator,
		mappers:      mappers,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

func (s *service) ProcessBeneficiary(ctx context.Context, callback BeneficiaryCallback) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendor":      callback.Vendor.String(),
		"external_id": callback.ExternalID,
		"status_code": callback.StatusCode,
	})

	mapper, ok := s.mappers[callback.Vendor]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no beneficiary callbacks for vendor %s", callback.Vendor))
	}
	newStatus, known := mapper(callback.StatusCode)
	if !known {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unrecognized beneficiary status code %q", callback.StatusCode))
	}

	ben, err := s.registry.GetByExternalID(ctx, callback.Vendor, callback.ExternalID)
	if err != nil {
		return err
	}
	if ben == nil {
		// The registration may be committed by another process later;
		// acknowledge and let the vendor's next delivery find it.
		s.logg.Warn(logCtx, "callback references unknown beneficiary, skipping")
		return nil
	}

	wasUsable := ben.Status == enums.BeneficiaryStatusActive

	if newStatus == ben.Status {
		s.logg.Info(logCtx, "beneficiary status unchanged, callback acknowledged")
		return nil
	}

	reason := callback.Reason
	if reason == "" {
		reason = "vendor callback " + callback.StatusCode
	}
	applied, err := s.registry.UpdateBeneficiaryStatus(ctx, ben, newStatus, reason)
	if err != nil {
		return err
	}
	if !applied {
		s.logg.Info(logCtx, "beneficiary transition lost the race, callback absorbed")
		return nil
	}

	if newStatus == enums.BeneficiaryStatusDisabled {
		if _, err := s.registry.IncrementRetryAndMaybeRequest(ctx, ben); err != nil {
			return err
		}
		return nil
	}

	if newStatus == enums.BeneficiaryStatusActive && !wasUsable {
		s.retriggerLoans(ctx, ben.CustomerID, ben.ID)
	}
	return nil
}

// retriggerLoans restarts disbursement for loans stuck behind this
// beneficiary. Each (beneficiary, loan) pair fires at most once; failures are
// logged and never fail the callback ack.
func (s *service) retriggerLoans(ctx context.Context, customerID, beneficiaryID uuid.UUID) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"customer_id":    customerID.String(),
		"beneficiary_id": beneficiaryID.String(),
	})

	affected, err := s.loans.ListRetriggerableLoans(ctx, customerID)
	if err != nil {
		s.logg.Error(logCtx, "listing retriggerable loans", err)
		return
	}

	for _, loan := range affected {
		claimed, err := s.repo.ClaimRetrigger(ctx, beneficiaryID, loan.ID)
		if err != nil {
			s.logg.Error(s.logg.WithLoanID(logCtx, loan.ID.String()), "claiming retrigger", err)
			continue
		}
		if !claimed {
			continue
		}
		if err := s.coordinator.Trigger(ctx, loan.ID); err != nil {
			s.logg.Error(s.logg.WithLoanID(logCtx, loan.ID.String()), "re-triggering disbursement", err)
		}
	}
}

func (s *service) ProcessUnsuccessful(ctx context.Context, vendor enums.DisbursementVendor, externalID string) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendor":      vendor.String(),
		"external_id": externalID,
	})

	ben, err := s.registry.GetByExternalID(ctx, vendor, externalID)
	if err != nil {
		return err
	}
	if ben == nil {
		s.logg.Warn(logCtx, "unsuccessful callback references unknown beneficiary, skipping")
		return nil
	}

	atLimit := s.cfg.BeneficiaryRetryLimit > 0 && ben.RetryCount >= s.cfg.BeneficiaryRetryLimit
	if _, err := s.registry.IncrementRetryAndMaybeRequest(ctx, ben); err != nil {
		return err
	}
	if !atLimit {
		return nil
	}

	// Retries exhausted: pin the sentinel so operators can tell "registered
	// but callback lost" from "never registered".
	if _, err := s.registry.UpdateBeneficiaryStatus(ctx, ben, enums.BeneficiaryStatusUnknownCallbackLost, "beneficiary callback never arrived"); err != nil {
		return err
	}
	return nil
}

func (s *service) ProcessDisbursement(ctx context.Context, callback DisbursementCallback) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"vendor":         callback.Vendor.String(),
		"correlation_id": callback.CorrelationID,
	})

	if callback.CorrelationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing correlation id")
	}

	target, err := s.stateMachine.GetByCorrelationID(ctx, callback.CorrelationID)
	if err != nil {
		return err
	}
	if target == nil {
		s.logg.Warn(logCtx, "callback references unknown disbursement, skipping")
		return nil
	}
	if target.Vendor != callback.Vendor {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("correlation id belongs to vendor %s", target.Vendor))
	}

	result := callback.Result
	if result.CorrelationID == "" {
		result.CorrelationID = callback.CorrelationID
	}
	return s.stateMachine.Resolve(ctx, target, result, "callback")
}
