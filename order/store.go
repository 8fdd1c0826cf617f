package order

import (
	"context"

	"github.com/xraph/storefront/id"
)

// Store is the order persistence contract.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID id.OrderID) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	List(ctx context.Context, userID string, opts ListOpts) ([]*Order, error)
	UpdateStatus(ctx context.Context, orderID id.OrderID, status Status) error
}

// ListOpts filters order listing.
type ListOpts struct {
	Kind   Kind
	Status Status
	Limit  int
	Offset int
}
