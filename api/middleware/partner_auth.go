package middleware

import (
	"net/http"
	"strings"

	"github.com/adityawarman/danaflow-backend/api/responses"
	pkgauth "github.com/adityawarman/danaflow-backend/pkg/auth"
	"github.com/adityawarman/danaflow-backend/pkg/config"
	pkgerrors "github.com/adityawarman/danaflow-backend/pkg/errors"
	"github.com/adityawarman/danaflow-backend/pkg/logger"
)

// PartnerAuth validates the bearer token vendors present on callback
// requests and seeds the context with the asserted vendor name.
func PartnerAuth(cfg config.PartnerJWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParsePartnerToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.Vendor == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing vendor claim"))
				return
			}

			ctx := WithPartnerVendor(r.Context(), claims.Vendor)
			if logg != nil {
				ctx = logg.WithField(ctx, "partner_vendor", claims.Vendor)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
