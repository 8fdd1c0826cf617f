package subscription

import (
	"context"

	"github.com/xraph/storefront/id"
)

// Store is the subscription persistence contract.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, userID string, opts ListOpts) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error

	// CountActive counts the user's non-terminal subscriptions tied to
	// the product, falling back to service-category matching for legacy
	// subscriptions without a product link.
	CountActive(ctx context.Context, userID string, productID id.ProductID, category string) (int, error)
}

// ListOpts filters subscription listing.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
