package rules

import (
	"context"

	"github.com/xraph/storefront/types"
)

// Handler adapts an external legacy fulfillment integration for one
// service category. Implementations live outside this module; the engine
// only consumes the interface.
type Handler interface {
	// Validate runs the handler's own admission predicate against the
	// customer-supplied subscription metadata. A non-nil error rejects
	// the purchase.
	Validate(ctx context.Context, metadata map[string]any) error

	// FallbackPrice returns the handler's price for the category in the
	// given currency, if it defines one.
	FallbackPrice(currency string) (types.Money, bool)

	// FallbackFeatures returns display features for variants that
	// predate per-variant feature lists.
	FallbackFeatures() []string
}

// HandlerRegistry resolves the legacy handler for a service category.
// It is injected into the engine explicitly; there is no module-level
// registry.
type HandlerRegistry interface {
	Lookup(category string) (Handler, bool)
}

// RegistryMap is a HandlerRegistry backed by a plain map keyed by
// service category. The zero value is an empty registry.
type RegistryMap map[string]Handler

// Lookup implements HandlerRegistry.
func (r RegistryMap) Lookup(category string) (Handler, bool) {
	h, ok := r[category]
	return h, ok
}
