package extension

import (
	"github.com/xraph/storefront"
	"github.com/xraph/storefront/plugin"
	"github.com/xraph/storefront/rules"
	"github.com/xraph/storefront/store"
)

// Option configures the Storefront Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine, overriding the config driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a storefront.Option through to the underlying engine.
func WithEngineOption(opt storefront.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a storefront plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, storefront.WithPlugin(p))
	}
}

// WithHandlerRegistry sets the legacy handler registry for the rule engine.
func WithHandlerRegistry(r rules.HandlerRegistry) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, storefront.WithHandlerRegistry(r))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDriver selects the store backend ("memory", "sqlite", "postgres").
func WithDriver(driver string) Option {
	return func(e *Extension) { e.config.Driver = driver }
}

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(e *Extension) { e.config.DSN = dsn }
}

// WithRequiredCurrencies sets the currency set the activation gate enforces.
func WithRequiredCurrencies(currencies ...string) Option {
	return func(e *Extension) { e.config.RequiredCurrencies = currencies }
}
