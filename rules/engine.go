package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidSchema is returned when a configured metadata schema does not
// compile. The affected purchase is rejected: a malformed schema never
// degrades to "allow".
var ErrInvalidSchema = errors.New("rules: metadata schema does not compile")

// ErrNoHandler is returned when a product opts into the legacy handler but
// no handler is registered for its service category.
var ErrNoHandler = errors.New("rules: no legacy handler registered for category")

// Violation describes one structural violation of the metadata schema, or
// a rejection from the legacy handler.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Engine evaluates purchase admission rules.
//
// Validators are compiled once per distinct schema and cached by a content
// fingerprint, so repeated purchases against the same product never pay
// recompilation cost.
type Engine struct {
	registry HandlerRegistry
	logger   *slog.Logger

	mu       sync.RWMutex
	compiled map[uint64]*jsonschema.Schema
}

// Option configures a rules Engine.
type Option func(*Engine)

// WithRegistry injects the legacy handler registry.
func WithRegistry(r HandlerRegistry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a rules engine. Without WithRegistry, legacy-handler
// opt-ins fail closed with ErrNoHandler.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.Default(),
		compiled: make(map[uint64]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Admit decides whether a candidate purchase passes the product's rule
// configuration. It returns the violation list (empty means admitted) or
// an error for misconfiguration (invalid schema, missing handler).
//
// When the legacy handler opt-in is set, both the schema check and the
// handler check must pass; neither alone is sufficient.
func (e *Engine) Admit(ctx context.Context, category string, cfg Config, metadata map[string]any) ([]Violation, error) {
	var violations []Violation

	if cfg.HasSchema() {
		vs, err := e.ValidateMetadata(cfg.MetadataSchema, metadata)
		if err != nil {
			return nil, err
		}
		violations = append(violations, vs...)
	}

	if cfg.UseLegacyHandler {
		if e.registry == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoHandler, category)
		}
		h, ok := e.registry.Lookup(category)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoHandler, category)
		}
		if err := h.Validate(ctx, metadata); err != nil {
			violations = append(violations, Violation{
				Path:    "(handler)",
				Message: err.Error(),
			})
		}
	}

	return violations, nil
}

// ValidateMetadata runs the structural validator for the given schema
// against candidate metadata. It returns the violations found, or an
// error wrapping ErrInvalidSchema when the schema itself is malformed.
func (e *Engine) ValidateMetadata(schema json.RawMessage, metadata map[string]any) ([]Violation, error) {
	sch, err := e.compile(schema)
	if err != nil {
		return nil, err
	}

	// Round-trip the candidate through JSON so the validator sees
	// canonical decoded-JSON types regardless of how the caller built
	// the map.
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("rules: marshal metadata: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("rules: decode metadata: %w", err)
	}

	err = sch.Validate(instance)
	if err == nil {
		return nil, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("rules: validate metadata: %w", err)
	}

	var violations []Violation
	flatten(ve, &violations)
	return violations, nil
}

// compile returns the cached validator for the schema, compiling on first
// use. The cache key is an xxhash fingerprint of the schema bytes.
func (e *Engine) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	fp := xxhash.Sum64(schema)

	e.mu.RLock()
	sch, ok := e.compiled[fp]
	e.mu.RUnlock()
	if ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	url := fmt.Sprintf("mem://rules/%016x.json", fp)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	sch, err = compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	e.mu.Lock()
	e.compiled[fp] = sch
	e.mu.Unlock()

	e.logger.Debug("compiled metadata schema", "fingerprint", fmt.Sprintf("%016x", fp))
	return sch, nil
}

// CachedSchemas returns the number of compiled schemas held in the cache.
func (e *Engine) CachedSchemas() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// flatten walks the validation error tree collecting leaf violations.
func flatten(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{
			Path:    "/" + strings.Join(ve.InstanceLocation, "/"),
			Message: ve.Error(),
		})
		return
	}
	for _, c := range ve.Causes {
		flatten(c, out)
	}
}
