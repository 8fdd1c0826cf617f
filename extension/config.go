package extension

// Config holds the Storefront extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.storefront" or "storefront" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend: "memory", "sqlite", or "postgres"
	// (default: "memory"). Ignored when a store is provided via WithStore.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the database connection string for the sqlite and postgres
	// drivers: a file path (or ":memory:") for sqlite, a connection URL
	// for postgres.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// RequiredCurrencies is the currency set the product activation gate
	// enforces (default: ["usd"]).
	RequiredCurrencies []string `json:"required_currencies" mapstructure:"required_currencies" yaml:"required_currencies"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:             "memory",
		RequiredCurrencies: []string{"usd"},
	}
}
