package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/adityawarman/danaflow-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// PartnerClaims identifies the partner platform calling the callback surface.
type PartnerClaims struct {
	Vendor string `json:"vendor"`
	jwt.RegisteredClaims
}

// MintPartnerToken issues a signed JWT handed to a callback partner out of
// band. A zero ttl mints a non-expiring token.
func MintPartnerToken(cfg config.PartnerJWTConfig, now time.Time, vendor string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("partner jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", fmt.Errorf("partner jwt issuer is required")
	}
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return "", fmt.Errorf("vendor is required")
	}

	claims := PartnerClaims{
		Vendor: vendor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing partner jwt: %w", err)
	}
	return signed, nil
}

// ParsePartnerToken validates the JWT string and returns typed claims.
func ParsePartnerToken(cfg config.PartnerJWTConfig, tokenString string) (*PartnerClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("partner jwt secret is required")
	}

	claims := &PartnerClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
