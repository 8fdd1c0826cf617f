package storefront

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/storefront/catalog"
	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/types"
)

// CreateProduct registers a new product in inactive status. Products are
// always born inactive; ActivateProduct is the only way to make one
// purchasable, so the pricing gate can never be bypassed at creation.
func (e *Engine) CreateProduct(ctx context.Context, p *catalog.Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if p.Slug == "" {
		return fmt.Errorf("%w: product slug is required", ErrInvalidInput)
	}
	if p.DefaultCurrency == "" {
		return fmt.Errorf("%w: product default currency is required", ErrInvalidInput)
	}
	if p.ID.IsNil() {
		p.ID = id.NewProductID()
	}
	p.Entity = types.NewEntity()
	p.Status = catalog.StatusInactive

	if err := e.store.CreateProduct(ctx, p); err != nil {
		return err
	}
	e.logger.Info("product created", "product_id", p.ID.String(), "slug", p.Slug)
	return nil
}

// GetProduct fetches one product.
func (e *Engine) GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error) {
	return e.store.GetProduct(ctx, productID)
}

// GetProductBySlug fetches one product by its URL slug.
func (e *Engine) GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	return e.store.GetProductBySlug(ctx, slug)
}

// ListProducts enumerates products, optionally filtered.
func (e *Engine) ListProducts(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Product, error) {
	return e.store.ListProducts(ctx, opts)
}

// UpdateProduct saves edits to a product's descriptive fields. Status is
// not editable here; ActivateProduct and DeactivateProduct own the
// lifecycle so the activation gate cannot be sidestepped.
func (e *Engine) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	current, err := e.store.GetProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Status = current.Status
	p.Touch()
	return e.store.UpdateProduct(ctx, p)
}

// CreateVariant adds a purchasable configuration to a product.
func (e *Engine) CreateVariant(ctx context.Context, v *catalog.Variant) error {
	if v.Name == "" {
		return fmt.Errorf("%w: variant name is required", ErrInvalidInput)
	}
	if _, err := e.store.GetProduct(ctx, v.ProductID); err != nil {
		return err
	}
	if v.ID.IsNil() {
		v.ID = id.NewVariantID()
	}
	v.Entity = types.NewEntity()

	if err := e.store.CreateVariant(ctx, v); err != nil {
		return err
	}
	e.logger.Info("variant created", "variant_id", v.ID.String(), "product_id", v.ProductID.String())
	return nil
}

// GetVariant fetches one variant.
func (e *Engine) GetVariant(ctx context.Context, variantID id.VariantID) (*catalog.Variant, error) {
	return e.store.GetVariant(ctx, variantID)
}

// ListVariants enumerates a product's variants.
func (e *Engine) ListVariants(ctx context.Context, productID id.ProductID) ([]*catalog.Variant, error) {
	return e.store.ListVariants(ctx, productID)
}

// UpdateVariant saves edits to a variant.
func (e *Engine) UpdateVariant(ctx context.Context, v *catalog.Variant) error {
	if _, err := e.store.GetVariant(ctx, v.ID); err != nil {
		return err
	}
	v.Touch()
	return e.store.UpdateVariant(ctx, v)
}

// CreateTerm adds a billing duration option to a variant.
func (e *Engine) CreateTerm(ctx context.Context, t *catalog.Term) error {
	if t.Months <= 0 {
		return fmt.Errorf("%w: term months must be positive", ErrInvalidInput)
	}
	if t.DiscountPercent < 0 || t.DiscountPercent > 100 {
		return fmt.Errorf("%w: discount percent must be within [0,100]", ErrInvalidInput)
	}
	if _, err := e.store.GetVariant(ctx, t.VariantID); err != nil {
		return err
	}
	if t.ID.IsNil() {
		t.ID = id.NewTermID()
	}
	t.Entity = types.NewEntity()
	return e.store.CreateTerm(ctx, t)
}

// ListTerms enumerates a variant's billing terms.
func (e *Engine) ListTerms(ctx context.Context, variantID id.VariantID) ([]*catalog.Term, error) {
	return e.store.ListTerms(ctx, variantID)
}

// SetPrice opens a new price history row for a (variant, currency) pair,
// closing any currently-open row at the new row's start in the same
// storage transaction. History is append-only; earlier rows stay intact
// for audit and for orders that already froze them.
func (e *Engine) SetPrice(ctx context.Context, variantID id.VariantID, currency string, amount int64, startsAt time.Time) (*catalog.Price, error) {
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: price amount must not be negative", ErrInvalidInput)
	}
	if _, err := e.store.GetVariant(ctx, variantID); err != nil {
		return nil, err
	}
	if startsAt.IsZero() {
		startsAt = e.now()
	}

	p := &catalog.Price{
		Entity:    types.NewEntity(),
		ID:        id.NewPriceID(),
		VariantID: variantID,
		Currency:  currency,
		Amount:    amount,
		StartsAt:  startsAt,
	}
	if err := e.store.SetPrice(ctx, p); err != nil {
		return nil, err
	}

	e.logger.Info("price set",
		"variant_id", variantID.String(),
		"currency", currency,
		"amount", amount,
		"starts_at", startsAt,
	)
	e.plugins.EmitPriceChanged(ctx, p)
	return p, nil
}

// PriceHistoryAt returns the price rows valid for an instant. More than
// one row indicates overlapping administration; resolution breaks the
// tie, this method exposes it.
func (e *Engine) PriceHistoryAt(ctx context.Context, variantID id.VariantID, currency string, at time.Time) ([]*catalog.Price, error) {
	return e.store.PricesAt(ctx, variantID, currency, at)
}

// ActivateProduct flips a product to active, but only when every active
// variant has a current price in every required currency. The check and
// the decision are atomic: a product is either fully priced and active,
// or unchanged. A failure reports the complete missing list so one admin
// pass fixes everything.
func (e *Engine) ActivateProduct(ctx context.Context, productID id.ProductID) error {
	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p.IsActive() {
		return fmt.Errorf("%w: product %s is already active", ErrInvalidInput, productID)
	}

	currencies := e.requiredCurrenciesFor(p)
	variants, err := e.store.ListVariants(ctx, productID)
	if err != nil {
		return err
	}

	now := e.now()
	var missing []MissingPrice
	for _, v := range variants {
		if !v.Active {
			continue
		}
		for _, cur := range currencies {
			prices, err := e.store.PricesAt(ctx, v.ID, cur, now)
			if err != nil {
				return err
			}
			if len(prices) == 0 {
				missing = append(missing, MissingPrice{VariantID: v.ID, Currency: cur})
			}
		}
	}
	if len(missing) > 0 {
		return &ActivationError{ProductID: productID, Missing: missing}
	}

	p.Status = catalog.StatusActive
	p.Touch()
	if err := e.store.UpdateProduct(ctx, p); err != nil {
		return err
	}

	e.logger.Info("product activated", "product_id", productID.String(), "currencies", currencies)
	e.plugins.EmitProductActivated(ctx, p)
	return nil
}

// DeactivateProduct takes a product off sale. Existing subscriptions are
// untouched; they keep renewing at their locked price.
func (e *Engine) DeactivateProduct(ctx context.Context, productID id.ProductID) error {
	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.IsActive() {
		return fmt.Errorf("%w: product %s is not active", ErrInvalidInput, productID)
	}

	p.Status = catalog.StatusInactive
	p.Touch()
	if err := e.store.UpdateProduct(ctx, p); err != nil {
		return err
	}

	e.logger.Info("product deactivated", "product_id", productID.String())
	e.plugins.EmitProductDeactivated(ctx, p)
	return nil
}

// requiredCurrenciesFor merges the engine's required currency set with
// the product's own default currency.
func (e *Engine) requiredCurrenciesFor(p *catalog.Product) []string {
	currencies := make([]string, 0, len(e.currencies)+1)
	seen := make(map[string]bool, len(e.currencies)+1)
	for _, c := range e.currencies {
		if !seen[c] {
			seen[c] = true
			currencies = append(currencies, c)
		}
	}
	if p.DefaultCurrency != "" && !seen[p.DefaultCurrency] {
		currencies = append(currencies, p.DefaultCurrency)
	}
	return currencies
}
