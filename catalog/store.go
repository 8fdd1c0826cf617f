package catalog

import (
	"context"
	"time"

	"github.com/xraph/storefront/id"
)

// Store is the catalog persistence contract.
type Store interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID id.ProductID) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	ListProducts(ctx context.Context, opts ListOpts) ([]*Product, error)
	UpdateProduct(ctx context.Context, p *Product) error

	CreateVariant(ctx context.Context, v *Variant) error
	GetVariant(ctx context.Context, variantID id.VariantID) (*Variant, error)
	ListVariants(ctx context.Context, productID id.ProductID) ([]*Variant, error)
	UpdateVariant(ctx context.Context, v *Variant) error

	CreateTerm(ctx context.Context, t *Term) error
	GetTermByMonths(ctx context.Context, variantID id.VariantID, months int) (*Term, error)
	ListTerms(ctx context.Context, variantID id.VariantID) ([]*Term, error)

	// PricesAt returns every price history row for (variant, currency)
	// whose validity window contains the instant. Under normal
	// administration at most one row qualifies; callers apply the
	// documented tie-break when more do.
	PricesAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*Price, error)

	// SetPrice atomically closes any open price rows for the pair and
	// opens a new row starting at the given instant, in one transaction,
	// so readers never durably observe two simultaneously valid prices.
	SetPrice(ctx context.Context, p *Price) error
}

// ListOpts filters product listing.
type ListOpts struct {
	Status   Status
	Category string
	Limit    int
	Offset   int
}
