package storefront

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/storefront/plugin"
	"github.com/xraph/storefront/rules"
	"github.com/xraph/storefront/store"
)

// DefaultCurrencies is the required currency set used when none is
// configured. Every active variant must be priced in every required
// currency before its product can go live.
var DefaultCurrencies = []string{"usd"}

// Engine is the catalog pricing resolution and purchase orchestration
// engine. It owns no timers and runs no background workers: renewal
// sweeps and task reviews are driven by external schedulers calling its
// synchronous operations.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	handlers rules.HandlerRegistry
	rules    *rules.Engine
	logger   *slog.Logger

	// Configuration
	currencies []string
	now        func() time.Time
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		currencies: DefaultCurrencies,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	ruleOpts := []rules.Option{rules.WithLogger(e.logger)}
	if e.handlers != nil {
		ruleOpts = append(ruleOpts, rules.WithRegistry(e.handlers))
	}
	e.rules = rules.NewEngine(ruleOpts...)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHandlerRegistry injects the legacy handler registry consulted by
// products that opt into external validation. There is no module-level
// registry: the dependency is explicit.
func WithHandlerRegistry(r rules.HandlerRegistry) Option {
	return func(e *Engine) {
		e.handlers = r
	}
}

// WithRequiredCurrencies sets the platform currency set enforced by the
// activation gate.
func WithRequiredCurrencies(currencies ...string) Option {
	return func(e *Engine) {
		if len(currencies) > 0 {
			e.currencies = currencies
		}
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// RequiredCurrencies returns the configured platform currency set.
func (e *Engine) RequiredCurrencies() []string {
	out := make([]string, len(e.currencies))
	copy(out, e.currencies)
	return out
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("storefront engine started",
		"required_currencies", e.currencies,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}
