package xfers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

var errMisconfigured = errors.New("xfers base url and api key are required")

// Client talks to the Xfers payout API. Authentication is a static API key
// header, so unlike Ayoconnect there is no token lifecycle to manage.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
}

func NewClient(ctx context.Context, cfg config.XfersConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() || logg == nil {
		return nil, errMisconfigured
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logg.Info(ctx, "xfers client initialized")
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logger:     logg,
	}, nil
}

func (c *Client) Name() enums.DisbursementVendor {
	return enums.VendorXfers
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-XFERS-APP-API-KEY": c.apiKey}
}

type beneficiaryBody struct {
	ExternalCustomerID string `json:"external_customer_id"`
	AccountNo          string `json:"account_no"`
	BankShortCode      string `json:"bank_short_code"`
	AccountHolderName  string `json:"account_holder_name"`
}

type beneficiaryReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) CreateOrUpdateBeneficiary(ctx context.Context, req vendors.BeneficiaryRequest) vendors.BeneficiaryResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v4/payouts/bank_accounts", c.headers(), beneficiaryBody{
		ExternalCustomerID: req.CustomerID.String(),
		AccountNo:          req.AccountNumber,
		BankShortCode:      req.BankCode,
		AccountHolderName:  req.AccountName,
	})
	if !exchange.OK() {
		c.logger.Error(ctx, "xfers create beneficiary", errors.New(exchange.Failure.Message))
		return vendors.BeneficiaryResult{Failure: exchange.Failure, Raw: exchange.Body}
	}

	var reply beneficiaryReply
	exchange.DecodeInto(&reply)
	return vendors.BeneficiaryResult{
		Accepted:   true,
		ExternalID: reply.ID,
		Status:     mapBeneficiaryStatus(reply.Status),
		Raw:        exchange.Body,
	}
}

type disburseBody struct {
	IdempotencyID string `json:"idempotency_id"`
	BankAccountID string `json:"bank_account_id"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
}

type disburseReply struct {
	ID            string `json:"id"`
	IdempotencyID string `json:"idempotency_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

func (c *Client) Disburse(ctx context.Context, req vendors.DisbursementRequest) vendors.DisbursementResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v4/payouts", c.headers(), disburseBody{
		IdempotencyID: req.CorrelationID,
		BankAccountID: req.BeneficiaryExternalID,
		Amount:        req.Amount.StringFixed(2),
		Description:   req.Remark,
	})
	if !exchange.OK() {
		c.logger.Error(ctx, "xfers disburse", errors.New(exchange.Failure.Message))
		return vendors.DisbursementResult{CorrelationID: req.CorrelationID, Failure: exchange.Failure, Raw: exchange.Body}
	}

	var reply disburseReply
	exchange.DecodeInto(&reply)
	result := vendors.DisbursementResult{
		Accepted:      true,
		Reference:     reply.ID,
		CorrelationID: req.CorrelationID,
		Raw:           exchange.Body,
	}
	applyStatus(&result, reply.Status, reply.FailureReason)
	return result
}

func (c *Client) CheckDisburseStatus(ctx context.Context, correlationID string) vendors.DisbursementResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodGet,
		c.baseURL+"/api/v4/payouts?idempotency_id="+url.QueryEscape(correlationID), c.headers(), nil)
	if !exchange.OK() {
		if exchange.Status == http.StatusNotFound {
			return vendors.DisbursementResult{CorrelationID: correlationID, NotFound: true, Raw: exchange.Body}
		}
		c.logger.Error(ctx, "xfers check disburse status", errors.New(exchange.Failure.Message))
		return vendors.DisbursementResult{CorrelationID: correlationID, Failure: exchange.Failure, Raw: exchange.Body}
	}

	var reply disburseReply
	exchange.DecodeInto(&reply)
	if reply.ID == "" {
		return vendors.DisbursementResult{CorrelationID: correlationID, NotFound: true, Raw: exchange.Body}
	}
	result := vendors.DisbursementResult{
		Accepted:      true,
		Reference:     reply.ID,
		CorrelationID: correlationID,
		Raw:           exchange.Body,
	}
	applyStatus(&result, reply.Status, reply.FailureReason)
	return result
}

type balanceReply struct {
	Balance string `json:"available_balance"`
}

func (c *Client) CheckBalance(ctx context.Context, minRequired decimal.Decimal) vendors.BalanceResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/v4/balances", c.headers(), nil)
	if !exchange.OK() {
		c.logger.Error(ctx, "xfers check balance", errors.New(exchange.Failure.Message))
		return vendors.BalanceResult{Status: enums.BalanceStatusUnavailable, Failure: exchange.Failure}
	}

	var reply balanceReply
	exchange.DecodeInto(&reply)
	balance, err := decimal.NewFromString(reply.Balance)
	if err != nil {
		return vendors.BalanceResult{
			Status:  enums.BalanceStatusUnavailable,
			Failure: vendors.ServiceFailure("", "unparseable balance "+reply.Balance),
		}
	}

	sufficient := balance.GreaterThanOrEqual(minRequired)
	status := enums.BalanceStatusSufficient
	if !sufficient {
		status = enums.BalanceStatusInsufficient
	}
	return vendors.BalanceResult{Status: status, Sufficient: sufficient, Balance: balance}
}

func mapBeneficiaryStatus(status string) enums.BeneficiaryStatus {
	switch status {
	case "pending":
		return enums.BeneficiaryStatusInactive
	case "verified":
		return enums.BeneficiaryStatusActive
	case "rejected":
		return enums.BeneficiaryStatusBlocked
	case "disabled":
		return enums.BeneficiaryStatusDisabled
	default:
		return enums.BeneficiaryStatusUnknown
	}
}

// ParseDisbursementCallback folds an inbound disbursement webhook into the
// gateway's typed result.
func ParseDisbursementCallback(correlationID, status, reason string) vendors.DisbursementResult {
	result := vendors.DisbursementResult{CorrelationID: correlationID}
	applyStatus(&result, status, reason)
	return result
}

func applyStatus(result *vendors.DisbursementResult, status, reason string) {
	switch status {
	case "completed":
		result.Completed = true
	case "failed", "cancelled":
		result.Failed = true
		if reason != "" {
			result.Failure = vendors.ClientFailure(status, reason)
		}
	default:
		// processing, queued: still in flight
	}
}
