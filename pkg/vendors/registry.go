package vendors

import (
	"github.com/adityawarman/danaflow-backend/pkg/enums"
)

// Registry resolves gateways by vendor and knows the failover order. Vendor
// selection happens once, at disbursement-creation time; downstream code asks
// the registry instead of matching on strings.
type Registry struct {
	gateways map[enums.DisbursementVendor]Gateway
	order    []enums.DisbursementVendor
}

// NewRegistry builds a registry from the configured gateways. Order matters:
// Alternate walks it to pick the failover vendor.
func NewRegistry(gateways ...Gateway) *Registry {
	registry := &Registry{
		gateways: make(map[enums.DisbursementVendor]Gateway, len(gateways)),
	}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		name := gw.Name()
		if _, exists := registry.gateways[name]; exists {
			continue
		}
		registry.gateways[name] = gw
		registry.order = append(registry.order, name)
	}
	return registry
}

// Get returns the gateway for the vendor, if configured.
func (r *Registry) Get(vendor enums.DisbursementVendor) (Gateway, bool) {
	gw, ok := r.gateways[vendor]
	return gw, ok
}

// Primary returns the first configured gateway.
func (r *Registry) Primary() (Gateway, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.gateways[r.order[0]], true
}

// Alternate returns the next configured vendor after the given one, wrapping
// around, or false when the failing vendor is the sole option.
func (r *Registry) Alternate(vendor enums.DisbursementVendor) (Gateway, bool) {
	if len(r.order) < 2 {
		return nil, false
	}
	for i, name := range r.order {
		if name == vendor {
			next := r.order[(i+1)%len(r.order)]
			return r.gateways[next], true
		}
	}
	// Unknown vendor: fall back to the primary.
	return r.gateways[r.order[0]], true
}

// All returns the configured gateways in registration order.
func (r *Registry) All() []Gateway {
	out := make([]Gateway, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.gateways[name])
	}
	return out
}
