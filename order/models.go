// Package order defines purchase and renewal orders, their line items,
// and payment records. All three carry an immutable pricing snapshot
// copied at commit time; after creation only the status field may change.
package order

import (
	"time"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/pricing"
	"github.com/xraph/storefront/types"
)

type Status string

const (
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
)

// Kind distinguishes the operation that created the order.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindRenewal  Kind = "renewal"
)

// Order is one committed purchase or renewal.
type Order struct {
	types.Entity
	ID             id.OrderID        `json:"id"`
	UserID         string            `json:"user_id"`
	Kind           Kind              `json:"kind"`
	Status         Status            `json:"status"`
	Currency       string            `json:"currency"`
	Total          types.Money       `json:"total"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Items          []OrderItem       `json:"items"`
	Payment        *Payment          `json:"payment,omitempty"`
}

// OrderItem is one line of an order with its frozen snapshot.
type OrderItem struct {
	ID          id.OrderItemID   `json:"id"`
	OrderID     id.OrderID       `json:"order_id"`
	VariantID   id.VariantID     `json:"variant_id"`
	Description string           `json:"description"`
	Snapshot    pricing.Snapshot `json:"snapshot"`
}

// PaymentStatus is the payment lifecycle status.
type PaymentStatus string

const (
	PaymentCaptured PaymentStatus = "captured"
	PaymentRefunded PaymentStatus = "refunded"
)

// Payment records the credit-ledger settlement of an order. Funds are
// always already-verified platform credits; there is no gateway here.
type Payment struct {
	ID         id.PaymentID  `json:"id"`
	OrderID    id.OrderID    `json:"order_id"`
	Amount     types.Money   `json:"amount"`
	Status     PaymentStatus `json:"status"`
	Method     string        `json:"method"`
	CapturedAt time.Time     `json:"captured_at"`
}

// MethodCredits is the only settlement method this engine writes.
const MethodCredits = "credits"
