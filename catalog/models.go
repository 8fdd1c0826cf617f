// Package catalog defines the administered sales catalog: products, their
// purchasable variants, billing terms, and the temporal price history.
package catalog

import (
	"time"

	"github.com/xraph/storefront/id"
	"github.com/xraph/storefront/types"
)

// Status is the product lifecycle status. Products are never hard-deleted;
// the status drives the lifecycle.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
)

// Product is a sellable service. Its Metadata bag carries the optional
// rule configuration (see package rules) and upgrade options.
type Product struct {
	types.Entity
	ID              id.ProductID   `json:"id"`
	Name            string         `json:"name"`
	Slug            string         `json:"slug"`
	Status          Status         `json:"status"`
	Category        string         `json:"category"`
	DefaultCurrency string         `json:"default_currency"`
	MaxPerCustomer  int            `json:"max_per_customer"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// IsActive reports whether the product is purchasable.
func (p *Product) IsActive() bool { return p.Status == StatusActive }

// Variant is a purchasable configuration of a product. At least one of
// Code or LegacyPlanCode must be set for the variant to be listable.
type Variant struct {
	types.Entity
	ID             id.VariantID `json:"id"`
	ProductID      id.ProductID `json:"product_id"`
	Name           string       `json:"name"`
	Code           string       `json:"code,omitempty"`
	LegacyPlanCode string       `json:"legacy_plan_code,omitempty"`
	Active         bool         `json:"active"`
	Features       []string     `json:"features,omitempty"`
	Badge          string       `json:"badge,omitempty"`
}

// Listable reports whether the variant carries a plan identifier. A
// variant without one cannot be fulfilled and must not reach customers.
func (v *Variant) Listable() bool {
	return v.Code != "" || v.LegacyPlanCode != ""
}

// Term is a billing duration option for a variant. A term with no
// discount implies full price.
type Term struct {
	types.Entity
	ID              id.TermID    `json:"id"`
	VariantID       id.VariantID `json:"variant_id"`
	Months          int          `json:"months"`
	DiscountPercent int          `json:"discount_percent"`
	Active          bool         `json:"active"`
	Recommended     bool         `json:"recommended"`
}

// Price is one temporal price history row for a (variant, currency) pair.
// Rows are never deleted, only closed by setting EndsAt.
type Price struct {
	types.Entity
	ID        id.PriceID   `json:"id"`
	VariantID id.VariantID `json:"variant_id"`
	Currency  string       `json:"currency"`
	Amount    int64        `json:"amount"` // minor units
	StartsAt  time.Time    `json:"starts_at"`
	EndsAt    *time.Time   `json:"ends_at,omitempty"`
}

// Contains reports whether the price's validity window covers the instant.
// The window is half-open: [StartsAt, EndsAt).
func (p *Price) Contains(t time.Time) bool {
	if t.Before(p.StartsAt) {
		return false
	}
	return p.EndsAt == nil || t.Before(*p.EndsAt)
}

// Money returns the price as a Money value.
func (p *Price) Money() types.Money {
	return types.Minor(p.Currency, p.Amount)
}
