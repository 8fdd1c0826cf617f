package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/storefront/types"
)

const planSchema = `{
	"type": "object",
	"required": ["region"],
	"properties": {
		"region": {"type": "string", "enum": ["us", "eu", "apac"]},
		"seats":  {"type": "integer", "minimum": 1}
	}
}`

type stubHandler struct {
	err      error
	price    types.Money
	hasPrice bool
	features []string
}

func (h *stubHandler) Validate(_ context.Context, _ map[string]any) error { return h.err }

func (h *stubHandler) FallbackPrice(string) (types.Money, bool) { return h.price, h.hasPrice }

func (h *stubHandler) FallbackFeatures() []string { return h.features }

func TestAdmitNoConfig(t *testing.T) {
	e := NewEngine()
	violations, err := e.Admit(context.Background(), "streaming", Config{}, map[string]any{"anything": true})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestAdmitSchemaPass(t *testing.T) {
	e := NewEngine()
	cfg := Config{MetadataSchema: json.RawMessage(planSchema)}

	violations, err := e.Admit(context.Background(), "streaming", cfg, map[string]any{
		"region": "eu",
		"seats":  5,
	})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestAdmitSchemaViolations(t *testing.T) {
	e := NewEngine()
	cfg := Config{MetadataSchema: json.RawMessage(planSchema)}

	violations, err := e.Admit(context.Background(), "streaming", cfg, map[string]any{
		"region": "mars",
	})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if len(violations) == 0 {
		t.Fatal("expected violations for out-of-enum region")
	}
	for _, v := range violations {
		if v.Message == "" {
			t.Error("violation with empty message")
		}
	}
}

func TestAdmitInvalidSchema(t *testing.T) {
	e := NewEngine()
	cfg := Config{MetadataSchema: json.RawMessage(`{"type": nope`)}

	_, err := e.Admit(context.Background(), "streaming", cfg, nil)
	if !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestAdmitLegacyHandler(t *testing.T) {
	rejection := errors.New("account not eligible")

	tests := []struct {
		name       string
		registry   HandlerRegistry
		wantErr    error
		violations int
	}{
		{"no registry", nil, ErrNoHandler, 0},
		{"no handler for category", RegistryMap{}, ErrNoHandler, 0},
		{"handler accepts", RegistryMap{"streaming": &stubHandler{}}, nil, 0},
		{"handler rejects", RegistryMap{"streaming": &stubHandler{err: rejection}}, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.registry != nil {
				opts = append(opts, WithRegistry(tt.registry))
			}
			e := NewEngine(opts...)
			cfg := Config{UseLegacyHandler: true}

			violations, err := e.Admit(context.Background(), "streaming", cfg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Admit failed: %v", err)
			}
			if len(violations) != tt.violations {
				t.Errorf("violations: got %d, want %d", len(violations), tt.violations)
			}
		})
	}
}

func TestAdmitSchemaAndHandlerCompose(t *testing.T) {
	// With both checks configured, failures from each accumulate.
	e := NewEngine(WithRegistry(RegistryMap{
		"streaming": &stubHandler{err: errors.New("handler says no")},
	}))
	cfg := Config{
		MetadataSchema:   json.RawMessage(planSchema),
		UseLegacyHandler: true,
	}

	violations, err := e.Admit(context.Background(), "streaming", cfg, map[string]any{
		"region": "mars",
	})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if len(violations) < 2 {
		t.Errorf("expected schema and handler violations, got %v", violations)
	}
}

func TestCompileCache(t *testing.T) {
	e := NewEngine()
	cfg := Config{MetadataSchema: json.RawMessage(planSchema)}

	for i := 0; i < 3; i++ {
		if _, err := e.Admit(context.Background(), "streaming", cfg, map[string]any{"region": "us"}); err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
	}
	if got := e.CachedSchemas(); got != 1 {
		t.Errorf("expected one cached schema, got %d", got)
	}

	other := Config{MetadataSchema: json.RawMessage(`{"type":"object"}`)}
	if _, err := e.Admit(context.Background(), "vpn", other, nil); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if got := e.CachedSchemas(); got != 2 {
		t.Errorf("expected two cached schemas, got %d", got)
	}
}

func TestViolationString(t *testing.T) {
	tests := []struct {
		v    Violation
		want string
	}{
		{Violation{Path: "/region", Message: "not in enum"}, "/region: not in enum"},
		{Violation{Message: "rejected"}, "rejected"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String: got %q, want %q", got, tt.want)
		}
	}
}
