package faspay

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adityawarman/danaflow-backend/pkg/config"
	"github.com/adityawarman/danaflow-backend/pkg/enums"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
	"github.com/adityawarman/danaflow-backend/pkg/vendors"
)

// Faspay response codes.
const (
	responseSuccess  = "00"
	responsePending  = "01"
	responseFailed   = "05"
	responseNotFound = "14"
)

var errMisconfigured = errors.New("faspay base url and credentials are required")

// Client talks to the BNI Faspay SendMe API. Every request carries a
// signature of sha1(md5(user_id + password + reference)) per the vendor's
// legacy signing scheme.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	password   string
	logger     *logger.Logger
}

func NewClient(ctx context.Context, cfg config.FaspayConfig, timeout time.Duration, logg *logger.Logger) (*Client, error) {
	if !cfg.Enabled() || logg == nil {
		return nil, errMisconfigured
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logg.Info(ctx, "faspay client initialized")
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		userID:     strings.TrimSpace(cfg.UserID),
		password:   strings.TrimSpace(cfg.Password),
		logger:     logg,
	}, nil
}

func (c *Client) Name() enums.DisbursementVendor {
	return enums.VendorFaspay
}

// Signature computes sha1(md5(userID + password + reference)) hex-encoded.
func Signature(userID, password, reference string) string {
	inner := md5.Sum([]byte(userID + password + reference))
	outer := sha1.Sum([]byte(hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])
}

func (c *Client) sign(reference string) string {
	return Signature(c.userID, c.password, reference)
}

type beneficiaryBody struct {
	UserID        string `json:"user_id"`
	Signature     string `json:"signature"`
	CustomerRef   string `json:"customer_ref"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	AccountName   string `json:"account_name"`
}

type beneficiaryReply struct {
	ResponseCode  string `json:"response_code"`
	ResponseDesc  string `json:"response_desc"`
	BeneficiaryID string `json:"beneficiary_id"`
	Status        string `json:"beneficiary_status"`
}

func (c *Client) CreateOrUpdateBeneficiary(ctx context.Context, req vendors.BeneficiaryRequest) vendors.BeneficiaryResult {
	customerRef := req.CustomerID.String()
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/sendme/api/register", nil, beneficiaryBody{
		UserID:        c.userID,
		Signature:     c.sign(customerRef),
		CustomerRef:   customerRef,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		AccountName:   req.AccountName,
	})
	if !exchange.OK() {
		c.logger.Error(ctx, "faspay create beneficiary", errors.New(exchange.Failure.Message))
		return vendors.BeneficiaryResult{Failure: exchange.Failure, Raw: exchange.Body}
	}

	var reply beneficiaryReply
	exchange.DecodeInto(&reply)
	if reply.ResponseCode != responseSuccess && reply.ResponseCode != responsePending {
		return vendors.BeneficiaryResult{
			Failure: vendors.ClientFailure(reply.ResponseCode, reply.ResponseDesc),
			Raw:     exchange.Body,
		}
	}
	return vendors.BeneficiaryResult{
		Accepted:   true,
		ExternalID: reply.BeneficiaryID,
		Status:     mapBeneficiaryStatus(reply.Status),
		Raw:        exchange.Body,
	}
}

type disburseBody struct {
	UserID        string `json:"user_id"`
	Signature     string `json:"signature"`
	TrxID         string `json:"trx_id"`
	BeneficiaryID string `json:"beneficiary_id"`
	Amount        string `json:"amount"`
	Remark        string `json:"remark,omitempty"`
}

type disburseReply struct {
	ResponseCode string `json:"response_code"`
	ResponseDesc string `json:"response_desc"`
	TrxID        string `json:"trx_id"`
	StanRef      string `json:"stan_ref"`
}

func (c *Client) Disburse(ctx context.Context, req vendors.DisbursementRequest) vendors.DisbursementResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/sendme/api/transfer", nil, disburseBody{
		UserID:        c.userID,
		Signature:     c.sign(req.CorrelationID),
		TrxID:         req.CorrelationID,
		BeneficiaryID: req.BeneficiaryExternalID,
		Amount:        req.Amount.StringFixed(2),
		Remark:        req.Remark,
	})
	if !exchange.OK() {
		c.logger.Error(ctx, "faspay disburse", errors.New(exchange.Failure.Message))
		return vendors.DisbursementResult{CorrelationID: req.CorrelationID, Failure: exchange.Failure, Raw: exchange.Body}
	}

	var reply disburseReply
	exchange.DecodeInto(&reply)
	return fromReply(req.CorrelationID, reply, exchange.Body)
}

type statusBody struct {
	UserID    string `json:"user_id"`
	Signature string `json:"signature"`
	TrxID     string `json:"trx_id"`
}

func (c *Client) CheckDisburseStatus(ctx context.Context, correlationID string) vendors.DisbursementResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/sendme/api/inquiry", nil, statusBody{
		UserID:    c.userID,
		Signature: c.sign(correlationID),
		TrxID:     correlationID,
	})
	if !exchange.OK() {
		c.logger.Error(ctx, "faspay check disburse status", errors.New(exchange.Failure.Message))
		return vendors.DisbursementResult{CorrelationID: correlationID, Failure: exchange.Failure, Raw: exchange.Body}
	}

	var reply disburseReply
	exchange.DecodeInto(&reply)
	return fromReply(correlationID, reply, exchange.Body)
}

type balanceBody struct {
	UserID    string `json:"user_id"`
	Signature string `json:"signature"`
}

type balanceReply struct {
	ResponseCode string `json:"response_code"`
	ResponseDesc string `json:"response_desc"`
	Balance      string `json:"balance"`
}

func (c *Client) CheckBalance(ctx context.Context, minRequired decimal.Decimal) vendors.BalanceResult {
	exchange := vendors.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/sendme/api/balance", nil, balanceBody{
		UserID:    c.userID,
		Signature: c.sign("balance"),
	})
	if !exchange.OK() {
		c.logger.Error(ctx, "faspay check balance", errors.New(exchange.Failure.Message))
		return vendors.BalanceResult{Status: enums.BalanceStatusUnavailable, Failure: exchange.Failure}
	}

	var reply balanceReply
	exchange.DecodeInto(&reply)
	if reply.ResponseCode != responseSuccess {
		return vendors.BalanceResult{
			Status:  enums.BalanceStatusUnavailable,
			Failure: vendors.ServiceFailure(reply.ResponseCode, reply.ResponseDesc),
		}
	}
	balance, err := decimal.NewFromString(strings.ReplaceAll(reply.Balance, ",", ""))
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

// ParseDisbursementCallback folds an inbound disbursement webhook into the
// gateway's typed result using the same response-code mapping as the
// synchronous API.
func ParseDisbursementCallback(correlationID, responseCode, responseDesc, stanRef string) vendors.DisbursementResult {
	return fromReply(correlationID, disburseReply{
		ResponseCode: responseCode,
		ResponseDesc: responseDesc,
		TrxID:        correlationID,
		StanRef:      stanRef,
	}, nil)
}

func fromReply(correlationID string, reply disburseReply, raw []byte) vendors.DisbursementResult {
	result := vendors.DisbursementResult{
		CorrelationID: correlationID,
		Reference:     reply.StanRef,
		Raw:           raw,
	}
	switch reply.ResponseCode {
	case responseSuccess:
		result.Accepted = true
		result.Completed = true
	case responsePending:
		result.Accepted = true
	case responseNotFound:
		result.NotFound = true
	case responseFailed:
		result.Accepted = true
		result.Failed = true
		result.Failure = vendors.ClientFailure(reply.ResponseCode, reply.ResponseDesc)
	default:
		result.Failure = vendors.ServiceFailure(reply.ResponseCode, reply.ResponseDesc)
	}
	return result
}

func mapBeneficiaryStatus(status string) enums.BeneficiaryStatus {
	switch status {
	case "0":
		return enums.BeneficiaryStatusInactive
	case "1":
		return enums.BeneficiaryStatusActive
	case "2":
		return enums.BeneficiaryStatusBlocked
	case "3":
		return enums.BeneficiaryStatusDisabled
	default:
		return enums.BeneficiaryStatusUnknown
	}
}
