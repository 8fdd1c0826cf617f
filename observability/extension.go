// Package observability provides a metrics extension for Storefront that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/storefront/order"
	"github.com/xraph/storefront/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnProductActivated     = (*MetricsExtension)(nil)
	_ plugin.OnProductDeactivated   = (*MetricsExtension)(nil)
	_ plugin.OnPriceChanged         = (*MetricsExtension)(nil)
	_ plugin.OnHygieneTaskOpened    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseCommitted    = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseRejected     = (*MetricsExtension)(nil)
	_ plugin.OnRenewalSucceeded     = (*MetricsExtension)(nil)
	_ plugin.OnRenewalFailed        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDeposited     = (*MetricsExtension)(nil)
	_ plugin.OnCreditsRefunded      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Storefront plugin to automatically track commerce metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Catalog metrics
	ProductActivated   Counter
	ProductDeactivated Counter
	PriceChanged       Counter
	HygieneTasksOpened Counter

	// Purchase metrics
	PurchasesCommitted Counter
	PurchasesRejected  Counter
	OrderAmounts       Histogram

	// Renewal metrics
	RenewalsSucceeded Counter
	RenewalsFailed    Counter

	// Subscription metrics
	SubscriptionsCanceled Counter

	// Credit metrics
	CreditsDeposited Counter
	CreditsRefunded  Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Catalog metrics
		ProductActivated:   factory.Counter("storefront.product.activated"),
		ProductDeactivated: factory.Counter("storefront.product.deactivated"),
		PriceChanged:       factory.Counter("storefront.price.changed"),
		HygieneTasksOpened: factory.Counter("storefront.hygiene.tasks.opened"),

		// Purchase metrics
		PurchasesCommitted: factory.Counter("storefront.purchase.committed"),
		PurchasesRejected:  factory.Counter("storefront.purchase.rejected"),
		OrderAmounts:       factory.Histogram("storefront.order.amount"),

		// Renewal metrics
		RenewalsSucceeded: factory.Counter("storefront.renewal.succeeded"),
		RenewalsFailed:    factory.Counter("storefront.renewal.failed"),

		// Subscription metrics
		SubscriptionsCanceled: factory.Counter("storefront.subscription.canceled"),

		// Credit metrics
		CreditsDeposited: factory.Counter("storefront.credits.deposited"),
		CreditsRefunded:  factory.Counter("storefront.credits.refunded"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnProductActivated implements plugin.OnProductActivated.
func (m *MetricsExtension) OnProductActivated(_ context.Context, _ interface{}) error {
	m.ProductActivated.Inc()
	return nil
}

// OnProductDeactivated implements plugin.OnProductDeactivated.
func (m *MetricsExtension) OnProductDeactivated(_ context.Context, _ interface{}) error {
	m.ProductDeactivated.Inc()
	return nil
}

// OnPriceChanged implements plugin.OnPriceChanged.
func (m *MetricsExtension) OnPriceChanged(_ context.Context, _ interface{}) error {
	m.PriceChanged.Inc()
	return nil
}

// OnHygieneTaskOpened implements plugin.OnHygieneTaskOpened.
func (m *MetricsExtension) OnHygieneTaskOpened(_ context.Context, _ interface{}) error {
	m.HygieneTasksOpened.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseCommitted implements plugin.OnPurchaseCommitted.
func (m *MetricsExtension) OnPurchaseCommitted(_ context.Context, ord, _ interface{}) error {
	m.PurchasesCommitted.Inc()
	m.observeOrder(ord)
	return nil
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (m *MetricsExtension) OnPurchaseRejected(_ context.Context, _, _ string) error {
	m.PurchasesRejected.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Renewal lifecycle hooks
// ──────────────────────────────────────────────────

// OnRenewalSucceeded implements plugin.OnRenewalSucceeded.
func (m *MetricsExtension) OnRenewalSucceeded(_ context.Context, _, ord interface{}) error {
	m.RenewalsSucceeded.Inc()
	m.observeOrder(ord)
	return nil
}

// observeOrder records the order's total in minor units.
func (m *MetricsExtension) observeOrder(v interface{}) {
	if ord, ok := v.(*order.Order); ok {
		m.OrderAmounts.Observe(float64(ord.Total.Amount))
	}
}

// OnRenewalFailed implements plugin.OnRenewalFailed.
func (m *MetricsExtension) OnRenewalFailed(_ context.Context, _ interface{}, _ string) error {
	m.RenewalsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ interface{}) error {
	m.SubscriptionsCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsDeposited implements plugin.OnCreditsDeposited.
func (m *MetricsExtension) OnCreditsDeposited(_ context.Context, _ interface{}) error {
	m.CreditsDeposited.Inc()
	return nil
}

// OnCreditsRefunded implements plugin.OnCreditsRefunded.
func (m *MetricsExtension) OnCreditsRefunded(_ context.Context, _ interface{}) error {
	m.CreditsRefunded.Inc()
	return nil
}
