// Package rules interprets per-product purchase rule configuration.
//
// A product's rule configuration decides whether a candidate purchase is
// admissible beyond basic availability: an optional JSON Schema for
// customer-supplied subscription metadata, and an opt-in flag routing
// validation through an external legacy handler. Historical data spells
// both settings under several key names; Normalize folds them into one
// canonical Config at the boundary so business logic never repeats the
// multi-key lookup.
package rules

import (
	"encoding/json"
)

// Historical key spellings. Earlier admin tooling wrote camelCase keys and
// an abbreviated "schema" key; all remain in stored product rows.
var (
	schemaKeys = []string{"metadata_schema", "metadataSchema", "schema"}
	legacyKeys = []string{"use_legacy_handler", "useLegacyHandler", "legacy_handler"}
)

// Config is the canonical, normalized rule configuration for a product.
type Config struct {
	// MetadataSchema is the raw JSON Schema for customer-supplied
	// subscription metadata, or nil when the product requires none.
	// The bytes are kept verbatim: a present-but-malformed schema must
	// surface as a configuration error at validation time, never be
	// silently discarded.
	MetadataSchema json.RawMessage

	// UseLegacyHandler opts the product into the external legacy
	// handler's validation predicate for its service category.
	UseLegacyHandler bool
}

// HasSchema reports whether a metadata schema is configured.
func (c Config) HasSchema() bool { return len(c.MetadataSchema) > 0 }

// IsZero reports whether no rule configuration is present.
func (c Config) IsZero() bool { return !c.HasSchema() && !c.UseLegacyHandler }

// Normalize folds a raw rule configuration value into a canonical Config.
//
// The raw value may be absent (nil), a structured object, or a JSON string
// requiring parsing. A value that cannot be parsed into an object at all is
// treated as absent configuration, not as an error: only a schema that is
// present yet malformed fails later, at compile time.
func Normalize(raw any) Config {
	obj := asObject(raw)
	if obj == nil {
		return Config{}
	}

	var cfg Config

	if v, ok := firstKey(obj, schemaKeys); ok {
		cfg.MetadataSchema = asSchemaBytes(v)
	}
	if v, ok := firstKey(obj, legacyKeys); ok {
		cfg.UseLegacyHandler = asBool(v)
	}

	return cfg
}

// asObject coerces the supported raw shapes into a key/value map.
func asObject(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		return parseObject([]byte(v))
	case []byte:
		return parseObject(v)
	case json.RawMessage:
		return parseObject(v)
	default:
		return nil
	}
}

func parseObject(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}

// firstKey returns the value of the first present key, in priority order.
func firstKey(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// asSchemaBytes preserves whatever was configured as the schema value.
// Objects are re-marshaled; strings are kept verbatim so that a
// syntactically invalid schema string still reaches the compiler and
// fails closed there.
func asSchemaBytes(v any) json.RawMessage {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		if s == "" {
			return nil
		}
		return json.RawMessage(s)
	case json.RawMessage:
		return s
	case []byte:
		return json.RawMessage(s)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return data
	}
}

// asBool interprets the loosely-typed historical truthy encodings.
func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1" || b == "yes"
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return false
	}
}
