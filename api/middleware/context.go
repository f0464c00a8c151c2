package middleware

import "context"

type contextKey string

const ctxPartnerVendor contextKey = "partner_vendor"

// PartnerVendorFromContext returns the vendor name asserted by the partner
// token, or "" when the request was not partner-authenticated.
func PartnerVendorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxPartnerVendor).(string); ok {
		return v
	}
	return ""
}

// WithPartnerVendor injects the partner vendor name into the context.
func WithPartnerVendor(ctx context.Context, vendor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPartnerVendor, vendor)
}
