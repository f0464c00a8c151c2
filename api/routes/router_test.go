package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/internal/beneficiary"
	"github.com/adityawarman/danaflow-backend/internal/callbacks"
	pkgauth "github.com/adityawarman/danaflow-backend/pkg/auth"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/db/models"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
	"github.com/adityawarman/danaflow-backend/pkg/vendors/faspay"
)

func newTestRouter(t *testing.T, service *stubCallbackService) (http.Handler, *config.Config) {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.PartnerJWT = config.PartnerJWTConfig{Secret: "router-secret", Issuer: "danaflow"}
	cfg.Faspay = config.FaspayConfig{BaseURL: "https://faspay.test", UserID: "bot-user", Password: "hunter2"}

	guard, err := callbacks.NewIdempotencyGuard(newStubStore(), time.Minute, "vendor-callbacks")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}

	router := NewRouter(RouterParams{
		Config:       cfg,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:           stubPinger{},
		Redis:        stubPinger{},
		Callbacks:    service,
		Claims:       stubClaims{},
		Guard:        guard,
		Registry:     stubRegistry{},
		StateMachine: stubStateMachine{},
	})
	return router, cfg
}

func TestRouterHealthLive(t *testing.T) {
	router, _ := newTestRouter(t, &stubCallbackService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRouterHealthReady(t *testing.T) {
	router, _ := newTestRouter(t, &stubCallbackService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRouterCallbacksRequireBearerToken(t *testing.T) {
	service := &stubCallbackService{}
	router, _ := newTestRouter(t, service)

	payload := []byte(`{"id":"payout-1","status":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/xfers/disbursement", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if service.disbursementCalls != 0 {
		t.Fatalf("service should not be invoked without a token")
	}
}

func TestRouterCallbacksAcceptPartnerToken(t *testing.T) {
	service := &stubCallbackService{}
	router, cfg := newTestRouter(t, service)

	token, err := pkgauth.MintPartnerToken(cfg.PartnerJWT, time.Now(), "xfers", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	payload := []byte(`{"id":"payout-1","status":"completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/xfers/disbursement", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.disbursementCalls != 1 {
		t.Fatalf("expected service called once, got %d", service.disbursementCalls)
	}
}

func TestRouterFaspayUsesSignatureNotBearer(t *testing.T) {
	service := &stubCallbackService{}
	router, cfg := newTestRouter(t, service)

	body := map[string]string{
		"trx_id":        "FP-1",
		"response_code": "00",
		"signature":     faspay.Signature(cfg.Faspay.UserID, cfg.Faspay.Password, "FP-1"),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/faspay/disbursement", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without bearer token, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.disbursementCalls != 1 {
		t.Fatalf("expected service called once, got %d", service.disbursementCalls)
	}
}

func TestRouterOpsRequireBearerToken(t *testing.T) {
	router, _ := newTestRouter(t, &stubCallbackService{})

	req := httptest.NewRequest(http.MethodPost, "/api/ops/v1/beneficiaries/"+uuid.NewString()+"/reset-retry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCallbackService struct {
	disbursementCalls int
}

func (s *stubCallbackService) ProcessBeneficiary(ctx context.Context, callback callbacks.BeneficiaryCallback) error {
	return nil
}

func (s *stubCallbackService) ProcessUnsuccessful(ctx context.Context, vendor enums.DisbursementVendor, externalID string) error {
	return nil
}

func (s *stubCallbackService) ProcessDisbursement(ctx context.Context, callback callbacks.DisbursementCallback) error {
	s.disbursementCalls++
	return nil
}

type stubClaims struct{}

func (stubClaims) ClaimRetrigger(ctx context.Context, beneficiaryID, loanID uuid.UUID) (bool, error) {
	return false, nil
}

func (stubClaims) ListClaims(ctx context.Context, beneficiaryID uuid.UUID) ([]models.GatewayCustomerLoan, error) {
	return nil, nil
}

type stubRegistry struct{}

func (stubRegistry) GetOrCreate(ctx context.Context, input beneficiary.GetOrCreateInput) (*models.Beneficiary, error) {
	return nil, nil
}

func (stubRegistry) GetByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	return nil, nil
}

func (stubRegistry) GetByExternalID(ctx context.Context, vendor enums.DisbursementVendor, externalID string) (*models.Beneficiary, error) {
	return nil, nil
}

func (stubRegistry) UpdateBeneficiaryStatus(ctx context.Context, ben *models.Beneficiary, newStatus enums.BeneficiaryStatus, reason string) (bool, error) {
	return false, nil
}

func (stubRegistry) IncrementRetryAndMaybeRequest(ctx context.Context, ben *models.Beneficiary) (bool, error) {
	return false, nil
}

func (stubRegistry) ResetRetry(ctx context.Context, id uuid.UUID) error {
	return nil
}

type stubStateMachine struct{}

func (stubStateMachine) Attempt(ctx context.Context, loan *models.Loan, ben *models.Beneficiary) (*models.Disbursement, error) {
	return nil, nil
}

func (stubStateMachine) Resolve(ctx context.Context, disbursement *models.Disbursement, result vendors.DisbursementResult, source string) error {
	return nil
}

func (stubStateMachine) Cancel(ctx context.Context, disbursementID uuid.UUID, reason string) error {
	return nil
}

func (stubStateMachine) GetByID(ctx context.Context, id uuid.UUID) (*models.Disbursement, error) {
	return nil, nil
}

func (stubStateMachine) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Disbursement, error) {
	return nil, nil
}

func (stubStateMachine) ListStaleInFlight(ctx context.Context, olderThan time.Duration, limit int) ([]models.Disbursement, error) {
	return nil, nil
}

type stubStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newStubStore() *stubStore {
	return &stubStore{data: make(map[string]string)}
}

func (s *stubStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *stubStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = "1"
	return true, nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return "df:idempotency:" + scope + ":" + id
}

func (s *stubStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
