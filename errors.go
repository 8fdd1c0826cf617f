package storefront

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/rules"
)

// Sentinel errors for the decision and transaction paths. Decision-path
// errors report a reason and never mutate state; transaction-path errors
// always roll back completely.
var (
	// General errors
	ErrNotFound      = errors.New("storefront: not found")
	ErrAlreadyExists = errors.New("storefront: already exists")
	ErrInvalidInput  = errors.New("storefront: invalid input")

	// Catalog errors
	ErrProductNotFound  = errors.New("storefront: product not found")
	ErrVariantNotFound  = errors.New("storefront: variant not found")
	ErrProductInactive  = errors.New("storefront: product is inactive")
	ErrVariantInactive  = errors.New("storefront: variant is inactive")
	ErrNoCurrentPrice   = errors.New("storefront: no currently valid price")
	ErrNoTermAvailable  = errors.New("storefront: no active term for requested duration")
	ErrProductNotListed = errors.New("storefront: variant is not listable")

	// Purchase errors
	ErrSubscriptionLimitExceeded = errors.New("storefront: subscription limit exceeded")
	ErrInsufficientCredits       = errors.New("storefront: insufficient credits")
	ErrLockContention            = errors.New("storefront: ledger lock contention")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("storefront: subscription not found")
	ErrSubscriptionState    = errors.New("storefront: invalid subscription state")

	// Order errors
	ErrOrderNotFound = errors.New("storefront: order not found")
	ErrOrderRefunded = errors.New("storefront: order already refunded")

	// Task errors
	ErrTaskNotFound = errors.New("storefront: task not found")

	// Configuration errors (fail closed, never degrade to "allow")
	ErrConfiguration = errors.New("storefront: configuration error")

	// Store errors
	ErrStoreClosed       = errors.New("storefront: store is closed")
	ErrTransactionFailed = errors.New("storefront: transaction failed")
	ErrMigrationFailed   = errors.New("storefront: migration failed")
)

// SchemaViolationError rejects a purchase whose metadata fails the
// product's rule configuration. It carries the full violation list.
type SchemaViolationError struct {
	Violations []rules.Violation
}

func (e *SchemaViolationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("storefront: metadata schema violation: %s", e.Violations[0])
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("storefront: %d metadata schema violations: %s",
		len(e.Violations), strings.Join(msgs, "; "))
}

// MissingPrice identifies one (variant, currency) pair that blocked a
// product activation.
type MissingPrice struct {
	VariantID id.VariantID `json:"variant_id"`
	Currency  string       `json:"currency"`
}

// ActivationError rejects a product activation as a single atomic
// decision, carrying the complete list of unpriced pairs.
type ActivationError struct {
	ProductID id.ProductID
	Missing   []MissingPrice
}

func (e *ActivationError) Error() string {
	pairs := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		pairs[i] = fmt.Sprintf("%s/%s", m.VariantID, m.Currency)
	}
	return fmt.Sprintf("storefront: cannot activate %s: missing prices for %s",
		e.ProductID, strings.Join(pairs, ", "))
}

func (e *ActivationError) Unwrap() error { return ErrNoCurrentPrice }

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrTaskNotFound)
}

// IsDenied returns true if the error is an expected purchase denial
// rather than an infrastructure failure.
func IsDenied(err error) bool {
	var sve *SchemaViolationError
	return errors.Is(err, ErrSubscriptionLimitExceeded) ||
		errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrNoCurrentPrice) ||
		errors.Is(err, ErrNoTermAvailable) ||
		errors.Is(err, ErrProductInactive) ||
		errors.Is(err, ErrVariantInactive) ||
		errors.As(err, &sve)
}

// IsConfiguration returns true for misconfiguration that fails closed:
// malformed rule schemas and missing legacy handlers.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, rules.ErrInvalidSchema) ||
		errors.Is(err, rules.ErrNoHandler)
}

// IsRetryable returns true if the error is transient and the caller may
// retry the operation (with the same idempotency key, for mutations).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockContention) ||
		errors.Is(err, ErrTransactionFailed)
}
