package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

func TestOpsResetBeneficiaryRetry(t *testing.T) {
	registry := &fakeOpsRegistry{}
	handler := OpsResetBeneficiaryRetry(registry, opsTestLogger())

	id := uuid.New()
	rec := opsRequest(handler, http.MethodPost, nil, "beneficiaryId", id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if registry.resetID != id {
		t.Fatalf("expected reset for %s, got %s", id, registry.resetID)
	}
}

func TestOpsResetBeneficiaryRetryInvalidID(t *testing.T) {
	registry := &fakeOpsRegistry{}
	handler := OpsResetBeneficiaryRetry(registry, opsTestLogger())

	rec := opsRequest(handler, http.MethodPost, nil, "beneficiaryId", "not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if registry.resetCalls != 0 {
		t.Fatalf("registry should not be invoked for a bad id")
	}
}

func TestOpsResetBeneficiaryRetryNotFound(t *testing.T) {
	registry := &fakeOpsRegistry{
		resetErr: pkgerrors.New(pkgerrors.CodeNotFound, "beneficiary not found"),
	}
	handler := OpsResetBeneficiaryRetry(registry, opsTestLogger())

	rec := opsRequest(handler, http.MethodPost, nil, "beneficiaryId", uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOpsListRetriggerClaims(t *testing.T) {
	beneficiaryID := uuid.New()
	loanID := uuid.New()
	claims := &fakeClaimsRepo{
		rows: []models.GatewayCustomerLoan{
			{ID: uuid.New(), BeneficiaryID: beneficiaryID, LoanID: loanID, Processed: true},
		},
	}
	handler := OpsListRetriggerClaims(claims, opsTestLogger())

	rec := opsRequest(handler, http.MethodGet, nil, "beneficiaryId", beneficiaryID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if claims.listedID != beneficiaryID {
		t.Fatalf("expected list for %s, got %s", beneficiaryID, claims.listedID)
	}

	var envelope struct {
		Data []struct {
			LoanID    uuid.UUID `json:"loan_id"`
			Processed bool      `json:"processed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(envelope.Data) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(envelope.Data))
	}
	if envelope.Data[0].LoanID != loanID || !envelope.Data[0].Processed {
		t.Fatalf("unexpected claim %+v", envelope.Data[0])
	}
}

func TestOpsListRetriggerClaimsInvalidID(t *testing.T) {
	claims := &fakeClaimsRepo{}
	handler := OpsListRetriggerClaims(claims, opsTestLogger())

	rec := opsRequest(handler, http.MethodGet, nil, "beneficiaryId", "not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if claims.listCalls != 0 {
		t.Fatalf("repository should not be consulted for a bad id")
	}
}

func TestOpsCancelDisbursement(t *testing.T) {
	machine := &fakeOpsStateMachine{}
	handler := OpsCancelDisbursement(machine, opsTestLogger())

	id := uuid.New()
	body := []byte(`{"reason":"wrong beneficiary account"}`)
	rec := opsRequest(handler, http.MethodPost, body, "disbursementId", id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if machine.cancelledID != id {
		t.Fatalf("expected cancel for %s, got %s", id, machine.cancelledID)
	}
	if machine.cancelReason != "wrong beneficiary account" {
		t.Fatalf("unexpected reason %q", machine.cancelReason)
	}
}

func TestOpsCancelDisbursementRequiresReason(t *testing.T) {
	machine := &fakeOpsStateMachine{}
	handler := OpsCancelDisbursement(machine, opsTestLogger())

	rec := opsRequest(handler, http.MethodPost, []byte(`{}`), "disbursementId", uuid.NewString())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if machine.cancelCalls != 0 {
		t.Fatalf("machine should not be invoked without a reason")
	}
}

func TestOpsCancelDisbursementAlreadyTerminal(t *testing.T) {
	machine := &fakeOpsStateMachine{
		cancelErr: pkgerrors.New(pkgerrors.CodeStateConflict, "disbursement is already completed"),
	}
	handler := OpsCancelDisbursement(machine, opsTestLogger())

	body := []byte(`{"reason":"operator request"}`)
	rec := opsRequest(handler, http.MethodPost, body, "disbursementId", uuid.NewString())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func opsRequest(handler http.HandlerFunc, method string, body []byte, paramKey, paramValue string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(paramKey, paramValue)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func opsTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type fakeOpsRegistry struct {
	resetCalls int
	resetID    uuid.UUID
	resetErr   error
}

func (f *fakeOpsRegistry) GetOrCreate(ctx context.Context, input beneficiary.GetOrCreateInput) (*models.Beneficiary, error) {
	return nil, nil
}

func (f *fakeOpsRegistry) GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	return nil, nil
}

func (f *fakeOpsRegistry) GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error) {
	return nil, nil
}

func (f *fakeOpsRegistry) UpdateBeneficiaryStatus(ctx context.Context, ben *models.Beneficiary, newStatus enums.BeneficiaryStatus, reason string) (bool, error) {
	return false, nil
}

func (f *fakeOpsRegistry) IncrementRetryAndMaybeRequest(ctx context.Context, ben *models.Beneficiary) (bool, error) {
	return false, nil
}

func (f *fakeOpsRegistry) ResetRetry(ctx context.Context, id uuid.UUID) error {
	f.resetCalls++
	f.resetID = id
	return f.resetErr
}

type fakeClaimsRepo struct {
	rows      []models.GatewayCustomerLoan
	listCalls int
	listedID  uuid.UUID
}

func (f *fakeClaimsRepo) ClaimRetrigger(ctx context.Context, beneficiaryID, loanID uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeClaimsRepo) ListClaims(ctx context.Context, beneficiaryID uuid.UUID) ([]models.GatewayCustomerLoan, error) {
	f.listCalls++
	f.listedID = beneficiaryID
	return f.rows, nil
}

type fakeOpsStateMachine struct {
	cancelCalls  int
	cancelledID  uuid.UUID
	cancelReason string
	cancelErr    error
}

func (f *fakeOpsStateMachine) Attempt(ctx context.Context, loan *models.Loan, ben *models.Beneficiary) (*models.Disbursement, error) {
	return nil, nil
}

func (f *fakeOpsStateMachine) Resolve(ctx context.Context, disbursement *models.Disbursement, result vendors.DisbursementResult, source string) error {
	return nil
}

func (f *fakeOpsStateMachine) Cancel(ctx context.Context, disbursementID uuid.UUID, reason string) error {
	f.cancelCalls++
	f.cancelledID = disbursementID
	f.cancelReason = reason
	return f.cancelErr
}

func (f *fakeOpsStateMachine) GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error) {
	return nil, nil
}

func (f *fakeOpsStateMachine) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Disbursement, error) {
	return nil, nil
}

func (f *fakeOpsStateMachine) ListStaleInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]models.Disbursement, error) {
	return nil, nil
}
