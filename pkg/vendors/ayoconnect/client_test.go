package ayoconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), config.AyoconnectConfig{
		BaseURL:      server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		MerchantCode: "MRCH01",
	}, 5*time.Second, logger.New(logger.Options{ServiceName: "test"}))
	require.NoError(t, err)
	return client, server
}

func tokenHandler(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accessToken": "tok-1",
		"tokenType":   "Bearer",
		"expiresIn":   3600,
	})
}

func TestNewClient_Misconfigured(t *testing.T) {
	_, err := NewClient(context.Background(), config.AyoconnectConfig{}, time.Second, logger.New(logger.Options{ServiceName: "test"}))
	require.Error(t, err)
}

func TestDisburse_AcceptedWithReference(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		tokenHandler(w)
	})
	mux.HandleFunc("/api/v1/bank-disbursements/disbursement", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "1500000.00", body["amount"])

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transactionId":   body["transactionId"],
			"referenceNumber": "AYO-REF-1",
			"status":          "01",
		})
	})

	client, _ := newTestClient(t, mux)

	result := client.Disburse(context.Background(), vendors.DisbursementRequest{
		DisbursementID:        uuid.New(),
		LoanID:                uuid.New(),
		CorrelationID:         "ayoconnect-abc",
		BeneficiaryExternalID: "BEN-1",
		Amount:                decimal.NewFromInt(1500000),
	})
	require.True(t, result.Failure.IsZero())
	require.True(t, result.Accepted)
	require.False(t, result.Completed)
	require.False(t, result.Failed)
	require.Equal(t, "AYO-REF-1", result.Reference)
	require.Equal(t, enums.VendorTransactionOutcomePending, result.Outcome())

	// Second call reuses the cached token.
	_ = client.Disburse(context.Background(), vendors.DisbursementRequest{
		CorrelationID: "ayoconnect-def",
		Amount:        decimal.NewFromInt(1500000),
	})
	require.Equal(t, 1, tokenCalls)
}

func TestDisburse_ClientErrorIsTyped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) { tokenHandler(w) })
	mux.HandleFunc("/api/v1/bank-disbursements/disbursement", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "INVALID_BENEFICIARY",
			"message": "beneficiary is not active",
		})
	})

	client, _ := newTestClient(t, mux)

	result := client.Disburse(context.Background(), vendors.DisbursementRequest{
		CorrelationID: "ayoconnect-abc",
		Amount:        decimal.NewFromInt(100),
	})
	require.Equal(t, vendors.FailureClient, result.Failure.Kind)
	require.Equal(t, "INVALID_BENEFICIARY", result.Failure.VendorCode)
	require.False(t, result.Failure.Retryable())
}

func TestDisburse_ServerErrorIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) { tokenHandler(w) })
	mux.HandleFunc("/api/v1/bank-disbursements/disbursement", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, _ := newTestClient(t, mux)

	result := client.Disburse(context.Background(), vendors.DisbursementRequest{
		CorrelationID: "ayoconnect-abc",
		Amount:        decimal.NewFromInt(100),
	})
	require.Equal(t, vendors.FailureService, result.Failure.Kind)
	require.True(t, result.Failure.Retryable())
}

func TestCheckDisburseStatus_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) { tokenHandler(w) })
	mux.HandleFunc("/api/v1/bank-disbursements/status/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "TRX_NOT_FOUND",
			"message": "transaction not found",
		})
	})

	client, _ := newTestClient(t, mux)

	result := client.CheckDisburseStatus(context.Background(), "ayoconnect-missing")
	require.True(t, result.NotFound)
	require.True(t, result.Failure.IsZero())
	require.Equal(t, enums.VendorTransactionOutcomeNotFound, result.Outcome())
}

func TestCheckDisburseStatus_Completed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) { tokenHandler(w) })
	mux.HandleFunc("/api/v1/bank-disbursements/status/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transactionId":   "ayoconnect-abc",
			"referenceNumber": "AYO-REF-1",
			"status":          "00",
		})
	})

	client, _ := newTestClient(t, mux)

	result := client.CheckDisburseStatus(context.Background(), "ayoconnect-abc")
	require.True(t, result.Completed)
	require.Equal(t, enums.VendorTransactionOutcomeSuccess, result.Outcome())
}

func TestCheckBalance_Insufficient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) { tokenHandler(w) })
	mux.HandleFunc("/api/v1/merchants/balance", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accountBalance": "4960000",
			"currency":       "IDR",
		})
	})

	client, _ := newTestClient(t, mux)

	result := client.CheckBalance(context.Background(), decimal.NewFromInt(1_000_000_000))
	require.Equal(t, enums.BalanceStatusInsufficient, result.Status)
	require.False(t, result.Sufficient)
	require.Equal(t, "4960000.00", result.BalanceString())
}

func TestCheckBalance_Sufficient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) { tokenHandler(w) })
	mux.HandleFunc("/api/v1/merchants/balance", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"accountBalance": "2000000000"})
	})

	client, _ := newTestClient(t, mux)

	result := client.CheckBalance(context.Background(), decimal.NewFromInt(1_000_000_000))
	require.Equal(t, enums.BalanceStatusSufficient, result.Status)
	require.True(t, result.Sufficient)
}

func TestMapBeneficiaryStatus(t *testing.T) {
	require.Equal(t, enums.BeneficiaryStatusInactive, MapBeneficiaryStatus("0"))
	require.Equal(t, enums.BeneficiaryStatusActive, MapBeneficiaryStatus("1"))
	require.Equal(t, enums.BeneficiaryStatusBlocked, MapBeneficiaryStatus("2"))
	require.Equal(t, enums.BeneficiaryStatusDisabled, MapBeneficiaryStatus("3"))
	require.Equal(t, enums.BeneficiaryStatusUnknown, MapBeneficiaryStatus("9"))

	status, known := ParseBeneficiaryStatus("1")
	require.True(t, known)
	require.Equal(t, enums.BeneficiaryStatusActive, status)

	_, known = ParseBeneficiaryStatus("9")
	require.False(t, known)
}
