// Package store defines the unified storage contract for the Storefront
// engine.
package store

import (
	"context"
	"time"

	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/credit"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/subscription"
	"github.com/xraph/storefront/task"
)

// Store is the unified storage interface for all Storefront entities.
// Instead of embedding the per-package sub-interfaces, all methods are
// declared explicitly to avoid naming conflicts.
type Store interface {
	// Catalog methods
	CreateProduct(ctx context.Context, p *catalog.Product) error
	GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error)
	ListProducts(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Product, error)
	UpdateProduct(ctx context.Context, p *catalog.Product) error
	CreateVariant(ctx context.Context, v *catalog.Variant) error
	GetVariant(ctx context.Context, variantID id.VariantID) (*catalog.Variant, error)
	ListVariants(ctx context.Context, productID id.ProductID) ([]*catalog.Variant, error)
	UpdateVariant(ctx context.Context, v *catalog.Variant) error
	CreateTerm(ctx context.Context, t *catalog.Term) error
	GetTermByMonths(ctx context.Context, variantID id.VariantID, months int) (*catalog.Term, error)
	ListTerms(ctx context.Context, variantID id.VariantID) ([]*catalog.Term, error)

	// Price history methods. SetPrice closes any open rows for the
	// (variant, currency) pair and opens the new row in one transaction,
	// so readers never durably observe two simultaneously valid prices.
	PricesAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error)
	SetPrice(ctx context.Context, p *catalog.Price) error

	// Subscription methods
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	CountActiveSubscriptions(ctx context.Context, userID string, productID id.ProductID, category string) (int, error)

	// Order methods
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error)
	ListOrders(ctx context.Context, userID string, opts order.ListOpts) ([]*order.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID id.OrderID, status order.Status) error

	// Credit ledger methods (unlocked; the locked surface is Tx)
	AppendCreditEntry(ctx context.Context, e *credit.Entry) error
	CreditBalance(ctx context.Context, userID, currency string) (int64, error)
	ListCreditEntries(ctx context.Context, userID string, opts credit.ListOpts) ([]*credit.Entry, error)

	// Admin task methods
	CreateTaskIfAbsent(ctx context.Context, t *task.Task) (bool, error)
	GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error)
	ListOpenTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error)
	CompleteTask(ctx context.Context, taskID id.TaskID) error

	// PurchaseTx runs fn inside one database transaction that holds an
	// exclusive lock on the user's credit-ledger row for the currency.
	// The lock is acquired before fn runs, serializing all spending per
	// user: it is the sole mechanism preventing double-spend. A non-nil
	// error from fn rolls everything back; no partial writes survive.
	PurchaseTx(ctx context.Context, userID, currency string, fn func(tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside a purchase or renewal transaction.
// Reads observe the transaction's snapshot; Balance and AppendEntry
// operate under the exclusive per-user ledger lock.
type Tx interface {
	GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error)
	GetVariant(ctx context.Context, variantID id.VariantID) (*catalog.Variant, error)
	GetTermByMonths(ctx context.Context, variantID id.VariantID, months int) (*catalog.Term, error)
	PricesAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error)
	CountActiveSubscriptions(ctx context.Context, userID string, productID id.ProductID, category string) (int, error)
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID id.OrderID, status order.Status) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)

	// Balance returns the locked user's balance in the locked currency.
	Balance(ctx context.Context) (int64, error)
	AppendEntry(ctx context.Context, e *credit.Entry) error

	CreateOrder(ctx context.Context, o *order.Order) error
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
}
