package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgauth "github.com/adityawarman/danaflow-backend/pkg/auth"
	"github.com/adityawarman/danaflow-backend/pkg/config"
)

func TestPartnerAuthRejectsMissingToken(t *testing.T) {
	cfg := config.PartnerJWTConfig{Secret: "secret", Issuer: "danaflow"}
	handler := PartnerAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPartnerAuthRejectsInvalidToken(t *testing.T) {
	cfg := config.PartnerJWTConfig{Secret: "secret", Issuer: "danaflow"}
	handler := PartnerAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPartnerAuthRejectsWrongIssuer(t *testing.T) {
	minted := config.PartnerJWTConfig{Secret: "secret", Issuer: "someone-else"}
	token, err := pkgauth.MintPartnerToken(minted, time.Now(), "ayoconnect", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	cfg := config.PartnerJWTConfig{Secret: "secret", Issuer: "danaflow"}
	handler := PartnerAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPartnerAuthRejectsMissingVendorClaim(t *testing.T) {
	cfg := config.PartnerJWTConfig{Secret: "secret", Issuer: "danaflow"}
	if _, err := pkgauth.MintPartnerToken(cfg, time.Now(), "  ", time.Hour); err == nil {
		t.Fatalf("expected mint to reject blank vendor")
	}
}

func TestPartnerAuthAllowsValidToken(t *testing.T) {
	cfg := config.PartnerJWTConfig{Secret: "secret", Issuer: "danaflow"}
	token, err := pkgauth.MintPartnerToken(cfg, time.Now(), "xfers", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var captured string
	handler := PartnerAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = PartnerVendorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured != "xfers" {
		t.Fatalf("expected vendor xfers in context, got %q", captured)
	}
}

func TestPartnerAuthRejectsExpiredToken(t *testing.T) {
	cfg := config.PartnerJWTConfig{Secret: "secret", Issuer: "danaflow"}
	token, err := pkgauth.MintPartnerToken(cfg, time.Now().Add(-2*time.Hour), "faspay", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	handler := PartnerAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
