package capability

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// stubStrategy is a named no-op strategy for registry tests.
type stubStrategy struct{ name string }

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Resolve(_ context.Context, _ ResolveInput) (*Resolution, error) {
	return &Resolution{}, nil
}

func TestRegistryExactMatchWinsOverWildcard(t *testing.T) {
	r := NewRegistry()
	exact := &stubStrategy{name: "exact"}
	wild := &stubStrategy{name: "wild"}

	if err := r.Register("service", "queue:sqs", exact); err != nil {
		t.Fatalf("register exact: %v", err)
	}
	if err := r.Register(WildcardSourceType, "queue:sqs", wild); err != nil {
		t.Fatalf("register wildcard: %v", err)
	}

	got, err := r.Lookup("service", "queue:sqs")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Name() != "exact" {
		t.Errorf("expected exact match, got %q", got.Name())
	}

	got, err = r.Lookup("worker", "queue:sqs")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Name() != "wild" {
		t.Errorf("expected wildcard fallback, got %q", got.Name())
	}
}

func TestRegistryLookupUnknownCapability(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("service", "ledger:quantum")
	var nf *NoStrategyFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NoStrategyFoundError, got %v", err)
	}
	if nf.SourceType != "service" || nf.Capability != "ledger:quantum" {
		t.Errorf("unexpected error fields: %+v", nf)
	}
}

func TestRegistryDuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("service", "queue:sqs", &stubStrategy{name: "a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("service", "queue:sqs", &stubStrategy{name: "b"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("service", "", &stubStrategy{name: "a"}); err == nil {
		t.Error("expected error for empty capability")
	}
	if err := r.Register("", "queue:sqs", &stubStrategy{name: "a"}); err == nil {
		t.Error("expected error for empty source type")
	}
	if err := r.Register("service", "queue:sqs", nil); err == nil {
		t.Error("expected error for nil strategy")
	}
}

func TestDefaultRegistryCapabilities(t *testing.T) {
	r := NewDefaultRegistry()
	got := r.Capabilities()
	want := []string{"cache:redis", "db:postgres", "http:service", "queue:sqs", "storage:s3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Capabilities = %v, want %v", got, want)
	}

	for _, c := range want {
		if _, err := r.Lookup("service", c); err != nil {
			t.Errorf("expected wildcard strategy for %q: %v", c, err)
		}
	}
}
