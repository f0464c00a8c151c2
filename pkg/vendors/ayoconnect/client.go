package ayoconnect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

const tokenExpirySlack = 30 * time.Second

// Vendor status codes carried in beneficiary/disbursement payloads.
const (
	beneficiaryStatusInactive = "0"
	beneficiaryStatusActive   = "1"
	beneficiaryStatusBlocked  = "2"
	beneficiaryStatusDisabled = "3"

	disburseStatusSuccess = "00"
	disburseStatusPending = "01"
	disburseStatusFailed  = "02"

	errCodeTransactionNotFound = "TRX_NOT_FOUND"
)

var (
	errBaseURLRequired  = errors.New("ayoconnect base url is required")
	errClientIDRequired = errors.New("ayoconnect client credentials are required")
	errLoggerRequired   = errors.New("ayoconnect logger is required")
)

// Client talks to the Ayoconnect bank-disbursement API with centralized auth,
// logging, redaction, and failure classification.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	merchantCode string
	logger       *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient validates the credentials and builds the adapter.
func NewClient(ctx context.Context, cfg config.AyoconnectConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errClientIDRequired
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		merchantCode: strings.TrimSpace(cfg.MerchantCode),
		logger:       logg,
	}

	logg.Info(ctx, "ayoconnect client initialized")
	return c, nil
}

// Name implements vendors.Gateway.
func (c *Client) Name() enums.DisbursementVendor {
	return enums.VendorAyoconnect
}

type beneficiaryRequestBody struct {
	CustomerID    string `json:"customerId"`
	AccountNumber string `json:"accountNumber"`
	BankCode      string `json:"bankCode"`
	AccountName   string `json:"accountName"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	MerchantCode  string `json:"merchantCode,omitempty"`
}

type beneficiaryResponseBody struct {
	BeneficiaryID string `json:"beneficiaryId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// CreateOrUpdateBeneficiary registers or refreshes the payout destination.
// The vendor answers 202; the authoritative status arrives via callback.
func (c *Client) CreateOrUpdateBeneficiary(ctx context.Context, req vendors.BeneficiaryRequest) vendors.BeneficiaryResult {
	headers, failure := c.authHeaders(ctx)
	if !failure.IsZero() {
		return vendors.BeneficiaryResult{Failure: failure}
	}

	c.log(ctx, "request", "create_beneficiary", map[string]any{
		"customer_id":    req.CustomerID.String(),
		"bank_code":      req.BankCode,
		"account_number": req.AccountNumber,
	})

	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/bank-disbursements/beneficiary", headers, beneficiaryRequestBody{
		CustomerID:    req.CustomerID.String(),
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		AccountName:   req.AccountName,
		PhoneNumber:   req.PhoneNumber,
		MerchantCode:  c.merchantCode,
	})
	if !exchange.OK() {
		c.log(ctx, "error", "create_beneficiary", map[string]any{"error": exchange.Failure.Message})
		return vendors.BeneficiaryResult{Failure: exchange.Failure, Raw: exchange.Body}
	}

	var body beneficiaryResponseBody
	exchange.DecodeInto(&body)
	c.log(ctx, "response", "create_beneficiary", map[string]any{
		"beneficiary_id": body.BeneficiaryID,
		"status":         body.Status,
	})
	return vendors.BeneficiaryResult{
		Accepted:      true,
		ExternalID:    body.BeneficiaryID,
		Status:        MapBeneficiaryStatus(body.Status),
		CorrelationID: body.TransactionID,
		Raw:           exchange.Body,
	}
}

type disburseRequestBody struct {
	TransactionID string `json:"transactionId"`
	BeneficiaryID string `json:"beneficiaryId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Remark        string `json:"remark,omitempty"`
	MerchantCode  string `json:"merchantCode,omitempty"`
}

type disburseResponseBody struct {
	TransactionID   string `json:"transactionId"`
	ReferenceNumber string `json:"referenceNumber"`
	Status          string `json:"status"`
	Reason          string `json:"reason"`
}

// Disburse submits the transfer. A 202 with a reference means accepted, not
// completed; the outcome arrives via callback or status poll.
func (c *Client) Disburse(ctx context.Context, req vendors.DisbursementRequest) vendors.DisbursementResult {
	headers, failure := c.authHeaders(ctx)
	if !failure.IsZero() {
		return vendors.DisbursementResult{CorrelationID: req.CorrelationID, Failure: failure}
	}

	c.log(ctx, "request", "disburse", map[string]any{
		"correlation_id": req.CorrelationID,
		"beneficiary_id": req.BeneficiaryExternalID,
		"amount":         req.Amount.StringFixed(2),
	})

	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/bank-disbursements/disbursement", headers, disburseRequestBody{
		TransactionID: req.CorrelationID,
		BeneficiaryID: req.BeneficiaryExternalID,
		Amount:        req.Amount.StringFixed(2),
		Currency:      "IDR",
		Remark:        req.Remark,
		MerchantCode:  c.merchantCode,
	})
	if !exchange.OK() {
		c.log(ctx, "error", "disburse", map[string]any{"error": exchange.Failure.Message})
		return vendors.DisbursementResult{CorrelationID: req.CorrelationID, Failure: exchange.Failure, Raw: exchange.Body}
	}

	var body disburseResponseBody
	exchange.DecodeInto(&body)
	c.log(ctx, "response", "disburse", map[string]any{
		"correlation_id": req.CorrelationID,
		"reference":      body.ReferenceNumber,
		"status":         body.Status,
	})
	result := vendors.DisbursementResult{
		Accepted:      body.ReferenceNumber != "" || exchange.Status == http.StatusAccepted,
		Reference:     body.ReferenceNumber,
		CorrelationID: req.CorrelationID,
		Raw:           exchange.Body,
	}
	applyDisburseStatus(&result, body.Status)
	return result
}

// CheckDisburseStatus polls the vendor for the true outcome of an accepted
// disbursement. Safe to repeat; a not-found answer is a typed result.
func (c *Client) CheckDisburseStatus(ctx context.Context, correlationID string) vendors.DisbursementResult {
	headers, failure := c.authHeaders(ctx)
	if !failure.IsZero() {
		return vendors.DisbursementResult{CorrelationID: correlationID, Failure: failure}
	}

	c.log(ctx, "request", "check_disburse_status", map[string]any{"correlation_id": correlationID})

	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodGet,
		c.baseURL+"/api/v1/bank-disbursements/status/"+url.PathEscape(correlationID), headers, nil)
	if !exchange.OK() {
		if exchange.Failure.VendorCode == errCodeTransactionNotFound || exchange.Status == http.StatusNotFound {
			c.log(ctx, "response", "check_disburse_status", map[string]any{
				"correlation_id": correlationID,
				"status":         "not_found",
			})
			return vendors.DisbursementResult{CorrelationID: correlationID, NotFound: true, Raw: exchange.Body}
		}
		c.log(ctx, "error", "check_disburse_status", map[string]any{"error": exchange.Failure.Message})
		return vendors.DisbursementResult{CorrelationID: correlationID, Failure: exchange.Failure, Raw: exchange.Body}
	}

	var body disburseResponseBody
	exchange.DecodeInto(&body)
	c.log(ctx, "response", "check_disburse_status", map[string]any{
		"correlation_id": correlationID,
		"status":         body.Status,
	})
	result := vendors.DisbursementResult{
		Accepted:      true,
		Reference:     body.ReferenceNumber,
		CorrelationID: correlationID,
		Raw:           exchange.Body,
	}
	applyDisburseStatus(&result, body.Status)
	if result.Failed && body.Reason != "" {
		result.Failure = vendors.ClientFailure(body.Status, body.Reason)
	}
	return result
}

type balanceResponseBody struct {
	AccountBalance string `json:"accountBalance"`
	Currency       string `json:"currency"`
}

// CheckBalance reads the merchant balance and compares it to the minimum the
// caller needs.
func (c *Client) CheckBalance(ctx context.Context, minRequired decimal.Decimal) vendors.BalanceResult {
	headers, failure := c.authHeaders(ctx)
	if !failure.IsZero() {
		return vendors.BalanceResult{Status: enums.BalanceStatusUnavailable, Failure: failure}
	}

	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/v1/merchants/balance", headers, nil)
	if !exchange.OK() {
		c.log(ctx, "error", "check_balance", map[string]any{"error": exchange.Failure.Message})
		return vendors.BalanceResult{Status: enums.BalanceStatusUnavailable, Failure: exchange.Failure}
	}

	var body balanceResponseBody
	exchange.DecodeInto(&body)
	balance, err := decimal.NewFromString(strings.ReplaceAll(body.AccountBalance, ",", ""))
	if err != nil {
		c.log(ctx, "error", "check_balance", map[string]any{"error": "unparseable balance " + body.AccountBalance})
		return vendors.BalanceResult{
			Status:  enums.BalanceStatusUnavailable,
			Failure: vendors.ServiceFailure("", fmt.Sprintf("unparseable balance %q", body.AccountBalance)),
		}
	}

	sufficient := balance.GreaterThanOrEqual(minRequired)
	status := enums.BalanceStatusSufficient
	if !sufficient {
		status = enums.BalanceStatusInsufficient
	}
	c.log(ctx, "response", "check_balance", map[string]any{
		"sufficient": sufficient,
		"balance":    balance.StringFixed(2),
	})
	return vendors.BalanceResult{Status: status, Sufficient: sufficient, Balance: balance}
}

// MapBeneficiaryStatus converts the vendor status code into the platform
// beneficiary status. Unknown codes map to the unknown sentinel; callers that
// must reject unknown codes compare against the raw code themselves.
func MapBeneficiaryStatus(code string) enums.BeneficiaryStatus {
	switch code {
	case beneficiaryStatusInactive:
		return enums.BeneficiaryStatusInactive
	case beneficiaryStatusActive:
		return enums.BeneficiaryStatusActive
	case beneficiaryStatusBlocked:
		return enums.BeneficiaryStatusBlocked
	case beneficiaryStatusDisabled:
		return enums.BeneficiaryStatusDisabled
	default:
		return enums.BeneficiaryStatusUnknown
	}
}

// ParseBeneficiaryStatus converts a callback status code, reporting false for
// codes the vendor never documented so callers can reject them outright.
func ParseBeneficiaryStatus(code string) (enums.BeneficiaryStatus, bool) {
	switch code {
	case beneficiaryStatusInactive, beneficiaryStatusActive, beneficiaryStatusBlocked, beneficiaryStatusDisabled:
		return MapBeneficiaryStatus(code), true
	default:
		return enums.BeneficiaryStatusUnknown, false
	}
}

// ParseDisbursementCallback folds an inbound disbursement webhook into the
// gateway's typed result. Unrecognized status codes leave the result pending
// so reconciliation keeps polling.
func ParseDisbursementCallback(correlationID, status, reference, errCode, errMessage string) vendors.DisbursementResult {
	result := vendors.DisbursementResult{
		CorrelationID: correlationID,
		Reference:     reference,
	}
	applyDisburseStatus(&result, status)
	if result.Failed && errCode != "" {
		result.Failure = vendors.ClientFailure(errCode, errMessage)
	}
	return result
}

func applyDisburseStatus(result *vendors.DisbursementResult, status string) {
	switch status {
	case disburseStatusSuccess:
		result.Completed = true
	case disburseStatusFailed:
		result.Failed = true
	case disburseStatusPending, "":
		// still in flight
	default:
		// Unrecognized codes stay pending; reconciliation keeps polling.
	}
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// authHeaders returns bearer headers, refreshing the cached token when it is
// within the expiry slack.
func (c *Client) authHeaders(ctx context.Context) (map[string]string, vendors.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" || time.Now().After(c.tokenExpiry.Add(-tokenExpirySlack)) {
		exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/oauth/token", nil, map[string]string{
			"clientId":     c.clientID,
			"clientSecret": c.clientSecret,
			"grantType":    "client_credentials",
		})
		if !exchange.OK() {
			return nil, exchange.Failure
		}
		var body tokenResponse
		exchange.DecodeInto(&body)
		if body.AccessToken == "" {
			return nil, vendors.ServiceFailure("", "token response missing accessToken")
		}
		c.accessToken = body.AccessToken
		c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	return map[string]string{
		"Authorization": "Bearer " + c.accessToken,
	}, vendors.Failure{}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"vendor":    enums.VendorAyoconnect.String(),
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("ayoconnect %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("ayoconnect %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"account_number", "secret", "token", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
