// Package pricing builds immutable pricing snapshots.
//
// A Snapshot is the price a customer agreed to at the moment of purchase:
// term length, base price, discount, and the resulting total. It is copied
// verbatim onto orders and subscriptions and is never recomputed from the
// live catalog afterwards; renewals re-apply the stored snapshot.
package pricing

import (
	"errors"
	"fmt"

	"github.com/xraph/storefront/types"
)

// ErrDiscountRange is returned when a discount percentage falls outside [0, 100].
var ErrDiscountRange = errors.New("pricing: discount percent out of range [0, 100]")

// ErrNegativePrice is returned when a base price is negative.
var ErrNegativePrice = errors.New("pricing: base price must not be negative")

// Snapshot is an immutable record of the agreed price.
type Snapshot struct {
	TermMonths      int         `json:"term_months"`
	BasePrice       types.Money `json:"base_price"`
	DiscountPercent int         `json:"discount_percent"`
	Total           types.Money `json:"total"`
}

// Build computes the total charge for a base price and term discount.
//
// The total is base × (100 − discount) / 100 in minor units, rounded
// half-up. Integer arithmetic only: for non-negative amounts within the
// catalog's range, (amount × (100 − discount) + 50) / 100 is exact.
func Build(base types.Money, termMonths, discountPercent int) (Snapshot, error) {
	if discountPercent < 0 || discountPercent > 100 {
		return Snapshot{}, fmt.Errorf("%w: got %d", ErrDiscountRange, discountPercent)
	}
	if base.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: got %s", ErrNegativePrice, base)
	}

	total := types.Money{
		Amount:   (base.Amount*int64(100-discountPercent) + 50) / 100,
		Currency: base.Currency,
	}

	return Snapshot{
		TermMonths:      termMonths,
		BasePrice:       base,
		DiscountPercent: discountPercent,
		Total:           total,
	}, nil
}

// IsZero reports whether the snapshot is the zero value.
func (s Snapshot) IsZero() bool {
	return s.TermMonths == 0 && s.BasePrice.IsZero() && s.DiscountPercent == 0 && s.Total.IsZero()
}
