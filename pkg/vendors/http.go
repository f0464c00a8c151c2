package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
)

// ErrorEnvelope is the common vendor error shape:
// {code, message, errors:[{code,message,details}]}.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"errors"`
}

// FirstCode returns the most specific vendor error code in the envelope.
func (e ErrorEnvelope) FirstCode() string {
	if len(e.Errors) > 0 && e.Errors[0].Code != "" {
		return e.Errors[0].Code
	}
	return e.Code
}

// FirstMessage returns the most specific vendor error message in the envelope.
func (e ErrorEnvelope) FirstMessage() string {
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		return e.Errors[0].Message
	}
	return e.Message
}

// Exchange is the outcome of one HTTP round trip against a vendor. A non-2xx
// response or transport error is folded into Failure; callers never see a raw
// error.
type Exchange struct {
	Status  int
	Body    []byte
	Failure Failure
}

// OK reports whether the exchange succeeded at the transport level.
func (e Exchange) OK() bool {
	return e.Failure.IsZero()
}

// DecodeInto unmarshals the body into dst, best effort. Vendor bodies vary
// between environments; missing fields are left zero rather than failed on.
func (e Exchange) DecodeInto(dst any) {
	_ = json.Unmarshal(e.Body, dst)
}

// Envelope decodes the vendor error envelope from the body, best effort.
func (e Exchange) Envelope() ErrorEnvelope {
	var env ErrorEnvelope
	_ = json.Unmarshal(e.Body, &env)
	return env
}

// DoJSON executes one JSON request with the vendor-call discipline: explicit
// timeout via the client, transport errors classified as timeout vs service,
// HTTP status classified per ClassifyStatus with the vendor envelope decoded
// into the failure.
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any) Exchange {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Exchange{Failure: ClientFailure("", "encode request: "+err.Error())}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Exchange{Failure: ClientFailure("", "build request: "+err.Error())}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Exchange{Failure: TimeoutFailure(err.Error())}
		}
		return Exchange{Failure: ServiceFailure("", err.Error())}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Exchange{Status: resp.StatusCode, Failure: ServiceFailure("", "read response: "+err.Error())}
	}

	exchange := Exchange{Status: resp.StatusCode, Body: raw}
	if kind := ClassifyStatus(resp.StatusCode); kind != FailureNone {
		env := exchange.Envelope()
		exchange.Failure = Failure{
			Kind:       kind,
			VendorCode: env.FirstCode(),
			Message:    env.FirstMessage(),
		}
		if exchange.Failure.Message == "" {
			exchange.Failure.Message = http.StatusText(resp.StatusCode)
		}
	}
	return exchange
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}
