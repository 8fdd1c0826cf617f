package storefront

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/pricing"
	"github.com/xraph/storefront/types"
)

// catalogReader is the read surface the resolver needs. Both store.Store
// and store.Tx satisfy it, so purchase re-checks run the identical
// resolution inside the transaction.
type catalogReader interface {
	GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error)
	GetVariant(ctx context.Context, variantID id.VariantID) (*catalog.Variant, error)
	GetTermByMonths(ctx context.Context, variantID id.VariantID, months int) (*catalog.Term, error)
	PricesAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error)
}

// Resolution is the outcome of pricing resolution: the catalog rows that
// currently govern a (variant, term, currency) combination.
type Resolution struct {
	Product         *catalog.Product `json:"product"`
	Variant         *catalog.Variant `json:"variant"`
	Term            *catalog.Term    `json:"term,omitempty"`
	BasePrice       types.Money      `json:"base_price"`
	DiscountPercent int              `json:"discount_percent"`
}

// Snapshot builds the immutable pricing snapshot for this resolution.
func (r *Resolution) Snapshot() (pricing.Snapshot, error) {
	months := 0
	if r.Term != nil {
		months = r.Term.Months
	}
	return pricing.Build(r.BasePrice, months, r.DiscountPercent)
}

// ResolvePricing finds the single currently-valid price and term discount
// for a variant, or reports why none exists. Both the variant and its
// owning product must be active; the requested term must exist and be
// active. A zero instant means now.
func (e *Engine) ResolvePricing(ctx context.Context, variantID id.VariantID, termMonths int, currency string, at time.Time) (*Resolution, error) {
	if at.IsZero() {
		at = e.now()
	}
	return e.resolvePricing(ctx, e.store, variantID, termMonths, currency, at)
}

func (e *Engine) resolvePricing(ctx context.Context, r catalogReader, variantID id.VariantID, termMonths int, currency string, at time.Time) (*Resolution, error) {
	variant, err := r.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if !variant.Active {
		return nil, fmt.Errorf("%w: %s", ErrVariantInactive, variantID)
	}

	product, err := r.GetProduct(ctx, variant.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrProductInactive, product.ID)
	}

	term, err := r.GetTermByMonths(ctx, variantID, termMonths)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %d months", ErrNoTermAvailable, termMonths)
		}
		return nil, err
	}
	if !term.Active {
		return nil, fmt.Errorf("%w: %d months", ErrNoTermAvailable, termMonths)
	}

	price, err := e.currentPrice(ctx, r, variantID, currency, at)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Product:         product,
		Variant:         variant,
		Term:            term,
		BasePrice:       price.Money(),
		DiscountPercent: term.DiscountPercent,
	}, nil
}

// currentPrice scans price history rows whose validity window contains
// the instant. Under normal administration exactly one row qualifies.
// More than one is an administrative error: the row with the greatest
// starts_at wins, breaking further ties by most recent creation. The
// tie-break is deterministic and logged so the overlap gets fixed rather
// than silently tolerated.
func (e *Engine) currentPrice(ctx context.Context, r catalogReader, variantID id.VariantID, currency string, at time.Time) (*catalog.Price, error) {
	prices, err := r.PricesAt(ctx, variantID, currency, at)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: %s/%s at %s", ErrNoCurrentPrice, variantID, currency, at.Format(time.RFC3339))
	}
	if len(prices) == 1 {
		return prices[0], nil
	}

	sort.SliceStable(prices, func(i, j int) bool {
		if !prices[i].StartsAt.Equal(prices[j].StartsAt) {
			return prices[i].StartsAt.After(prices[j].StartsAt)
		}
		return prices[i].CreatedAt.After(prices[j].CreatedAt)
	})

	e.logger.Warn("overlapping price history windows",
		"variant_id", variantID.String(),
		"currency", currency,
		"candidates", len(prices),
		"chosen", prices[0].ID.String(),
	)

	return prices[0], nil
}

// Listing is one displayable (product, variant) pair with its resolved
// default price.
type Listing struct {
	Product         *catalog.Product `json:"product"`
	Variant         *catalog.Variant `json:"variant"`
	Term            *catalog.Term    `json:"term,omitempty"`
	BasePrice       types.Money      `json:"base_price"`
	DiscountPercent int              `json:"discount_percent"`
	Total           types.Money      `json:"total"`
}

// ListFilter narrows listing enumeration.
type ListFilter struct {
	Category string
}

// ListActiveListings enumerates (product, variant) pairs where both are
// active, resolving each variant's price for the product's default
// currency and the variant's default term. A variant that cannot be
// published (no current price, or no plan identifier) is excluded from
// the result and handed to the hygiene monitor; it never fails the call.
func (e *Engine) ListActiveListings(ctx context.Context, filter ListFilter) ([]Listing, error) {
	now := e.now()

	products, err := e.store.ListProducts(ctx, catalog.ListOpts{
		Status:   catalog.StatusActive,
		Category: filter.Category,
	})
	if err != nil {
		return nil, err
	}

	listings := make([]Listing, 0)
	for _, product := range products {
		variants, err := e.store.ListVariants(ctx, product.ID)
		if err != nil {
			return nil, err
		}

		for _, variant := range variants {
			if !variant.Active {
				continue
			}
			if !variant.Listable() {
				e.reportHygiene(ctx, product, variant, hygieneMissingPlanCode)
				continue
			}

			l, err := e.buildListing(ctx, product, variant, now)
			if err != nil {
				if IsDenied(err) {
					e.reportHygiene(ctx, product, variant, hygieneMissingPrice)
					continue
				}
				return nil, err
			}
			listings = append(listings, *l)
		}
	}

	return listings, nil
}

func (e *Engine) buildListing(ctx context.Context, product *catalog.Product, variant *catalog.Variant, at time.Time) (*Listing, error) {
	price, err := e.currentPrice(ctx, e.store, variant.ID, product.DefaultCurrency, at)
	if err != nil {
		return nil, err
	}

	terms, err := e.store.ListTerms(ctx, variant.ID)
	if err != nil {
		return nil, err
	}
	term := defaultTerm(terms)

	discount := 0
	months := 0
	if term != nil {
		discount = term.DiscountPercent
		months = term.Months
	}

	snap, err := pricing.Build(price.Money(), months, discount)
	if err != nil {
		return nil, err
	}

	return &Listing{
		Product:         product,
		Variant:         variant,
		Term:            term,
		BasePrice:       snap.BasePrice,
		DiscountPercent: snap.DiscountPercent,
		Total:           snap.Total,
	}, nil
}

// defaultTerm picks the term shown by default: the recommended active
// term, falling back to the shortest active one. Nil when the variant
// has no active terms (full price display).
func defaultTerm(terms []*catalog.Term) *catalog.Term {
	var shortest *catalog.Term
	for _, t := range terms {
		if !t.Active {
			continue
		}
		if t.Recommended {
			return t
		}
		if shortest == nil || t.Months < shortest.Months {
			shortest = t
		}
	}
	return shortest
}
