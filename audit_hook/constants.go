package audithook

// Action constants for audit events.
const (
	// Catalog actions
	ActionProductActivated   = "product.activated"
	ActionProductDeactivated = "product.deactivated"
	ActionPriceChanged       = "price.changed"
	ActionHygieneTaskOpened  = "hygiene_task.opened"

	// Purchase actions
	ActionPurchaseCommitted = "purchase.committed"
	ActionPurchaseRejected  = "purchase.rejected"

	// Renewal actions
	ActionRenewalSucceeded = "renewal.succeeded"
	ActionRenewalFailed    = "renewal.failed"

	// Subscription actions
	ActionSubscriptionCanceled = "subscription.canceled"

	// Credit actions
	ActionCreditsDeposited = "credits.deposited"
	ActionCreditsRefunded  = "credits.refunded"
)

// Resource constants for audit events.
const (
	ResourceProduct      = "product"
	ResourcePrice        = "price"
	ResourceOrder        = "order"
	ResourceSubscription = "subscription"
	ResourceCreditEntry  = "credit_entry"
	ResourceTask         = "task"
)

// Category constants for audit events.
const (
	CategoryCatalog      = "catalog"
	CategoryCommerce     = "commerce"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryAdmin        = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
