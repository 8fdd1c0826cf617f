package credit

import "context"

// Store is the credit ledger persistence contract. Append and Balance
// outside a purchase transaction are unlocked reads/writes; the locked
// variants live on the transactional store (see package store).
type Store interface {
	Append(ctx context.Context, e *Entry) error
	Balance(ctx context.Context, userID, currency string) (int64, error)
	ListEntries(ctx context.Context, userID string, opts ListOpts) ([]*Entry, error)
}

// ListOpts filters ledger entry listing.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
