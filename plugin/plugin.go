// Package plugin provides an extensible plugin system for Storefront.
// Plugins can hook into lifecycle events to extend functionality: the
// notification dispatcher, audit trail, and metrics collectors all attach
// through these interfaces.
package plugin

import "context"

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnProductActivated is called after a product passes the activation gate.
type OnProductActivated interface {
	Plugin
	OnProductActivated(ctx context.Context, product interface{}) error
}

// OnProductDeactivated is called when a product is taken off sale.
type OnProductDeactivated interface {
	Plugin
	OnProductDeactivated(ctx context.Context, product interface{}) error
}

// OnPriceChanged is called after an admin opens a new price row.
type OnPriceChanged interface {
	Plugin
	OnPriceChanged(ctx context.Context, price interface{}) error
}

// OnHygieneTaskOpened is called when the hygiene monitor opens a new
// administrative follow-up. Deduplicated sightings do not re-fire.
type OnHygieneTaskOpened interface {
	Plugin
	OnHygieneTaskOpened(ctx context.Context, task interface{}) error
}

// ──────────────────────────────────────────────────
// Purchase / renewal hooks
// ──────────────────────────────────────────────────

// OnPurchaseCommitted is called after a purchase transaction commits.
type OnPurchaseCommitted interface {
	Plugin
	OnPurchaseCommitted(ctx context.Context, ord interface{}, sub interface{}) error
}

// OnPurchaseRejected is called when a purchase is denied before any
// state change (limits, rules, pricing, insufficient credits).
type OnPurchaseRejected interface {
	Plugin
	OnPurchaseRejected(ctx context.Context, userID string, reason string) error
}

// OnRenewalSucceeded is called after a renewal transaction commits.
type OnRenewalSucceeded interface {
	Plugin
	OnRenewalSucceeded(ctx context.Context, sub interface{}, ord interface{}) error
}

// OnRenewalFailed is called when a renewal fails on insufficient credits
// and the subscription enters its grace state. The notification
// dispatcher attaches here.
type OnRenewalFailed interface {
	Plugin
	OnRenewalFailed(ctx context.Context, sub interface{}, reason string) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCanceled is called when a subscription is cancelled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub interface{}) error
}

// ──────────────────────────────────────────────────
// Credit ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsDeposited is called after a verified top-up is appended.
type OnCreditsDeposited interface {
	Plugin
	OnCreditsDeposited(ctx context.Context, entry interface{}) error
}

// OnCreditsRefunded is called after a compensating refund is appended.
type OnCreditsRefunded interface {
	Plugin
	OnCreditsRefunded(ctx context.Context, entry interface{}) error
}
