package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onProductActivated     []OnProductActivated
	onProductDeactivated   []OnProductDeactivated
	onPriceChanged         []OnPriceChanged
	onHygieneTaskOpened    []OnHygieneTaskOpened
	onPurchaseCommitted    []OnPurchaseCommitted
	onPurchaseRejected     []OnPurchaseRejected
	onRenewalSucceeded     []OnRenewalSucceeded
	onRenewalFailed        []OnRenewalFailed
	onSubscriptionCanceled []OnSubscriptionCanceled
	onCreditsDeposited     []OnCreditsDeposited
	onCreditsRefunded      []OnCreditsRefunded
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnProductActivated); ok {
		r.onProductActivated = append(r.onProductActivated, v)
	}
	if v, ok := p.(OnProductDeactivated); ok {
		r.onProductDeactivated = append(r.onProductDeactivated, v)
	}
	if v, ok := p.(OnPriceChanged); ok {
		r.onPriceChanged = append(r.onPriceChanged, v)
	}
	if v, ok := p.(OnHygieneTaskOpened); ok {
		r.onHygieneTaskOpened = append(r.onHygieneTaskOpened, v)
	}
	if v, ok := p.(OnPurchaseCommitted); ok {
		r.onPurchaseCommitted = append(r.onPurchaseCommitted, v)
	}
	if v, ok := p.(OnPurchaseRejected); ok {
		r.onPurchaseRejected = append(r.onPurchaseRejected, v)
	}
	if v, ok := p.(OnRenewalSucceeded); ok {
		r.onRenewalSucceeded = append(r.onRenewalSucceeded, v)
	}
	if v, ok := p.(OnRenewalFailed); ok {
		r.onRenewalFailed = append(r.onRenewalFailed, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnCreditsDeposited); ok {
		r.onCreditsDeposited = append(r.onCreditsDeposited, v)
	}
	if v, ok := p.(OnCreditsRefunded); ok {
		r.onCreditsRefunded = append(r.onCreditsRefunded, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnProductActivated)(nil)).Elem(), "OnProductActivated")
	checkInterface(reflect.TypeOf((*OnPriceChanged)(nil)).Elem(), "OnPriceChanged")
	checkInterface(reflect.TypeOf((*OnHygieneTaskOpened)(nil)).Elem(), "OnHygieneTaskOpened")
	checkInterface(reflect.TypeOf((*OnPurchaseCommitted)(nil)).Elem(), "OnPurchaseCommitted")
	checkInterface(reflect.TypeOf((*OnRenewalFailed)(nil)).Elem(), "OnRenewalFailed")
	checkInterface(reflect.TypeOf((*OnSubscriptionCanceled)(nil)).Elem(), "OnSubscriptionCanceled")
	checkInterface(reflect.TypeOf((*OnCreditsDeposited)(nil)).Elem(), "OnCreditsDeposited")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitProductActivated emits a product activated event.
func (r *Registry) EmitProductActivated(ctx context.Context, product interface{}) {
	r.mu.RLock()
	plugins := r.onProductActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnProductActivated(ctx, product)
		}); err != nil {
			r.logger.Warn("plugin OnProductActivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitProductDeactivated emits a product deactivated event.
func (r *Registry) EmitProductDeactivated(ctx context.Context, product interface{}) {
	r.mu.RLock()
	plugins := r.onProductDeactivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnProductDeactivated(ctx, product)
		}); err != nil {
			r.logger.Warn("plugin OnProductDeactivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPriceChanged emits a price changed event.
func (r *Registry) EmitPriceChanged(ctx context.Context, price interface{}) {
	r.mu.RLock()
	plugins := r.onPriceChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPriceChanged(ctx, price)
		}); err != nil {
			r.logger.Warn("plugin OnPriceChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitHygieneTaskOpened emits a hygiene task opened event.
func (r *Registry) EmitHygieneTaskOpened(ctx context.Context, task interface{}) {
	r.mu.RLock()
	plugins := r.onHygieneTaskOpened
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnHygieneTaskOpened(ctx, task)
		}); err != nil {
			r.logger.Warn("plugin OnHygieneTaskOpened failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPurchaseCommitted emits a purchase committed event.
func (r *Registry) EmitPurchaseCommitted(ctx context.Context, ord, sub interface{}) {
	r.mu.RLock()
	plugins := r.onPurchaseCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPurchaseCommitted(ctx, ord, sub)
		}); err != nil {
			r.logger.Warn("plugin OnPurchaseCommitted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPurchaseRejected emits a purchase rejected event.
func (r *Registry) EmitPurchaseRejected(ctx context.Context, userID, reason string) {
	r.mu.RLock()
	plugins := r.onPurchaseRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPurchaseRejected(ctx, userID, reason)
		}); err != nil {
			r.logger.Warn("plugin OnPurchaseRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRenewalSucceeded emits a renewal succeeded event.
func (r *Registry) EmitRenewalSucceeded(ctx context.Context, sub, ord interface{}) {
	r.mu.RLock()
	plugins := r.onRenewalSucceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRenewalSucceeded(ctx, sub, ord)
		}); err != nil {
			r.logger.Warn("plugin OnRenewalSucceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRenewalFailed emits a renewal failed event.
func (r *Registry) EmitRenewalFailed(ctx context.Context, sub interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onRenewalFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRenewalFailed(ctx, sub, reason)
		}); err != nil {
			r.logger.Warn("plugin OnRenewalFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCanceled(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCanceled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsDeposited emits a credits deposited event.
func (r *Registry) EmitCreditsDeposited(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsDeposited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsDeposited(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsDeposited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsRefunded emits a credits refunded event.
func (r *Registry) EmitCreditsRefunded(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCreditsRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsRefunded(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsRefunded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout guards event dispatch so a stuck plugin cannot wedge
// the engine's write path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
