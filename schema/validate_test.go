package schema

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(BaseManifestSchema(), NewDefaultTypeRegistry(nil))
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	return v
}

func validRaw() map[string]any {
	return map[string]any{
		"service": "orders",
		"owner":   "team-orders",
		"components": []any{
			map[string]any{
				"name": "api",
				"type": "service",
				"config": map[string]any{
					"image": "orders-api:1.2.3",
				},
			},
		},
	}
}

func TestValidateAcceptsValidManifest(t *testing.T) {
	v := testValidator(t)
	if err := v.Validate(validRaw()); err != nil {
		t.Fatalf("expected valid manifest, got: %v", err)
	}
}

func TestValidateMissingRequiredFields(t *testing.T) {
	v := testValidator(t)

	err := v.Validate(map[string]any{"service": "orders"})
	if err == nil {
		t.Fatal("expected violations")
	}
	var vs Violations
	if !errors.As(err, &vs) {
		t.Fatalf("expected Violations, got %T", err)
	}
	keywords := make(map[string]bool)
	for _, viol := range vs {
		keywords[viol.Keyword] = true
	}
	if !keywords["required"] {
		t.Errorf("expected a required violation, got %v", vs)
	}
}

func TestValidateAggregatesAllErrors(t *testing.T) {
	v := testValidator(t)

	raw := map[string]any{
		"service": "Orders!", // pattern violation
		"owner":   "team-orders",
		"components": []any{
			map[string]any{
				"name":   "api",
				"type":   "service",
				"config": map[string]any{"image": "img", "port": float64(99999)}, // maximum violation
			},
			map[string]any{
				"name": "jobs",
				// type missing: required violation
			},
		},
	}

	err := v.Validate(raw)
	if err == nil {
		t.Fatal("expected violations")
	}
	var vs Violations
	if !errors.As(err, &vs) {
		t.Fatalf("expected Violations, got %T", err)
	}
	if len(vs) < 3 {
		t.Fatalf("expected at least 3 violations in one pass, got %d:\n%v", len(vs), vs)
	}
}

func TestValidateUnknownComponentTypeListsAllowedTypes(t *testing.T) {
	v := testValidator(t)

	raw := validRaw()
	raw["components"].([]any)[0].(map[string]any)["type"] = "lambda"

	err := v.Validate(raw)
	if err == nil {
		t.Fatal("expected violations")
	}
	var vs Violations
	if !errors.As(err, &vs) {
		t.Fatalf("expected Violations, got %T", err)
	}
	var typeViol *Violation
	for _, viol := range vs {
		if viol.Path == "/components/0/type" {
			typeViol = viol
			break
		}
	}
	if typeViol == nil {
		t.Fatalf("no violation at /components/0/type in %v", vs)
	}
	msg := typeViol.Message
	for _, want := range []string{"allowed types", "queue", "service", "database"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %q, got %q", want, msg)
		}
	}
}

func TestValidateAttributesComponent(t *testing.T) {
	v := testValidator(t)

	raw := map[string]any{
		"service": "orders",
		"owner":   "team-orders",
		"components": []any{
			map[string]any{
				"name":   "api",
				"type":   "service",
				"config": map[string]any{"image": "img"},
			},
			map[string]any{
				"name":   "db",
				"type":   "database",
				"config": map[string]any{"storageGB": float64(1)}, // below minimum
			},
		},
	}

	err := v.Validate(raw)
	if err == nil {
		t.Fatal("expected violations")
	}
	var vs Violations
	if !errors.As(err, &vs) {
		t.Fatalf("expected Violations, got %T", err)
	}
	found := false
	for _, viol := range vs {
		if viol.ComponentName == "db" && viol.ComponentType == "database" {
			found = true
		}
	}
	if !found {
		t.Errorf("no violation attributed to component db: %v", vs)
	}
}

func TestValidateInvalidBindShape(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		name string
		bind map[string]any
	}{
		{"neither to nor select", map[string]any{
			"capability": "queue:sqs", "access": "write",
		}},
		{"both to and select", map[string]any{
			"to":         "jobs",
			"select":     map[string]any{"type": "queue"},
			"capability": "queue:sqs",
			"access":     "write",
		}},
		{"invalid access", map[string]any{
			"to": "jobs", "capability": "queue:sqs", "access": "root",
		}},
		{"malformed capability", map[string]any{
			"to": "jobs", "capability": "queuesqs", "access": "write",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			comp := raw["components"].([]any)[0].(map[string]any)
			comp["binds"] = []any{tt.bind}
			if err := v.Validate(raw); err == nil {
				t.Error("expected violations")
			}
		})
	}
}

func TestValidateNormalizesYAMLValues(t *testing.T) {
	v := testValidator(t)

	// YAML decodes numbers as int and dates as time.Time; both must be
	// normalized into the JSON value space before validation.
	raw := validRaw()
	comp := raw["components"].([]any)[0].(map[string]any)
	comp["config"].(map[string]any)["port"] = 8080
	comp["config"].(map[string]any)["replicas"] = int64(3)
	raw["governance"] = map[string]any{
		"suppress": []any{map[string]any{
			"id":            "SUP-1",
			"justification": "accepted risk",
			"owner":         "team-orders",
			"expiresOn":     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	if err := v.Validate(raw); err != nil {
		t.Fatalf("expected normalized manifest to validate, got: %v", err)
	}
}

func TestViolationPathsAreJSONPointers(t *testing.T) {
	v := testValidator(t)

	raw := validRaw()
	raw["components"].([]any)[0].(map[string]any)["name"] = "Bad Name"

	err := v.Validate(raw)
	if err == nil {
		t.Fatal("expected violations")
	}
	var vs Violations
	if !errors.As(err, &vs) {
		t.Fatalf("expected Violations, got %T", err)
	}
	found := false
	for _, viol := range vs {
		if viol.Path == "/components/0/name" {
			found = true
			if viol.Value != "Bad Name" {
				t.Errorf("expected offending value, got %v", viol.Value)
			}
		}
	}
	if !found {
		t.Errorf("no violation at /components/0/name: %v", vs)
	}
}

func TestValidatorReloadPicksUpNewTypes(t *testing.T) {
	registry := NewDefaultTypeRegistry(nil)
	v, err := NewValidator(BaseManifestSchema(), registry)
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}

	raw := validRaw()
	raw["components"].([]any)[0].(map[string]any)["type"] = "topic"
	raw["components"].([]any)[0].(map[string]any)["config"] = map[string]any{}
	if err := v.Validate(raw); err == nil {
		t.Fatal("expected unknown type to be rejected before registration")
	}

	registry.Register(TypeDefinition{
		Type:         "topic",
		ConfigSchema: &Document{Type: "object"},
	})
	if err := v.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if err := v.Validate(raw); err != nil {
		t.Fatalf("expected topic to validate after reload, got: %v", err)
	}
}

func TestCompileBudgetError(t *testing.T) {
	e := &CompileTimeoutError{Budget: 50 * time.Millisecond}
	if !strings.Contains(e.Error(), "50ms") {
		t.Errorf("expected budget in message, got %q", e.Error())
	}
}

func TestJSONPointerEscaping(t *testing.T) {
	tests := []struct {
		location []string
		want     string
	}{
		{nil, ""},
		{[]string{"components", "0", "name"}, "/components/0/name"},
		{[]string{"a/b", "c~d"}, "/a~1b/c~0d"},
	}
	for _, tt := range tests {
		if got := jsonPointer(tt.location); got != tt.want {
			t.Errorf("jsonPointer(%v) = %q, want %q", tt.location, got, tt.want)
		}
	}
}
