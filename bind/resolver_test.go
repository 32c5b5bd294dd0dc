package bind

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/GoCodeAlone/stackplan/capability"
	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/graph"
	"github.com/GoCodeAlone/stackplan/manifest"
	"github.com/GoCodeAlone/stackplan/observability/tracing"
)

func testSource() capability.StaticSource {
	return capability.StaticSource{
		"jobs": &capability.Data{
			Type:     "queue:sqs",
			Endpoint: capability.Endpoint{Scheme: "https", Host: "sqs.local", Port: 443, SupportsTLS: true},
			Resources: map[string]string{
				"url": "https://sqs.local/123/jobs",
				"arn": "arn:aws:sqs:local:123:jobs",
			},
		},
		"db": &capability.Data{
			Type:        "db:postgres",
			Endpoint:    capability.Endpoint{Host: "db.local", Port: 5432, SupportsTLS: true},
			Resources:   map[string]string{"name": "orders"},
			RequiresTLS: true,
		},
	}
}

func queueEdge() graph.Edge {
	return graph.Edge{
		Source:     "api",
		SourceType: "service",
		Target:     "jobs",
		TargetType: "queue",
		Directive: manifest.BindingDirective{
			To:         "jobs",
			Capability: "queue:sqs",
			Access:     manifest.AccessWrite,
		},
	}
}

func testResolver(opts ...Option) *Resolver {
	return NewResolver(capability.NewDefaultRegistry(), compliance.NewEnforcer(nil), testSource(), opts...)
}

func TestResolveProducesFrozenResult(t *testing.T) {
	r := testResolver()

	res, err := r.Resolve(context.Background(), queueEdge(), compliance.FrameworkModerate, "prod")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	meta := res.Metadata()
	if meta.Source != "api" || meta.Target != "jobs" || meta.Strategy != "queue" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.BindingID == "" {
		t.Error("expected a binding identifier")
	}

	// Mutating returned slices must not leak into the result.
	envs := res.EnvVars()
	if len(envs) == 0 {
		t.Fatal("expected env vars")
	}
	envs[0].Value = "tampered"
	if res.EnvVars()[0].Value == "tampered" {
		t.Error("result was mutated through an accessor copy")
	}

	grants := res.Grants()
	if len(grants) == 0 {
		t.Fatal("expected grants")
	}
	grants[0].Actions[0] = "tampered"
	if res.Grants()[0].Actions[0] == "tampered" {
		t.Error("grant actions were mutated through an accessor copy")
	}
}

func TestResolveCachesByBindingContext(t *testing.T) {
	r := testResolver()
	ctx := context.Background()

	a, err := r.Resolve(ctx, queueEdge(), compliance.FrameworkModerate, "prod")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	b, err := r.Resolve(ctx, queueEdge(), compliance.FrameworkModerate, "prod")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if a != b {
		t.Error("expected the cached result instance for an identical binding context")
	}

	// A different environment is a different binding context.
	c, err := r.Resolve(ctx, queueEdge(), compliance.FrameworkModerate, "dev")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if c == a {
		t.Error("expected a distinct result for a different environment")
	}
	if c.Metadata().BindingID == a.Metadata().BindingID {
		t.Error("expected a distinct binding identifier for a different environment")
	}
}

func TestResolveMissingCapabilityData(t *testing.T) {
	r := testResolver()

	edge := queueEdge()
	edge.Target = "ghost"

	_, err := r.Resolve(context.Background(), edge, compliance.FrameworkCommercial, "prod")
	var me *MissingCapabilityDataError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingCapabilityDataError, got %v", err)
	}
	if me.Component != "ghost" {
		t.Errorf("unexpected component %q", me.Component)
	}
}

func TestResolveNoStrategy(t *testing.T) {
	r := testResolver()

	edge := queueEdge()
	edge.Directive.Capability = "ledger:quantum"

	_, err := r.Resolve(context.Background(), edge, compliance.FrameworkCommercial, "prod")
	var nf *capability.NoStrategyFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NoStrategyFoundError, got %v", err)
	}
}

func TestResolveComplianceRejection(t *testing.T) {
	r := testResolver()

	edge := graph.Edge{
		Source:     "api",
		SourceType: "service",
		Target:     "db",
		TargetType: "database",
		Directive: manifest.BindingDirective{
			To:         "db",
			Capability: "db:postgres",
			Access:     manifest.AccessReadWrite,
			Options:    map[string]any{"tls": false},
		},
	}

	_, err := r.Resolve(context.Background(), edge, compliance.FrameworkModerate, "prod")
	var verr *compliance.ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ViolationError, got %v", err)
	}
}

func TestResolveRecordsComplianceActions(t *testing.T) {
	r := testResolver()

	res, err := r.Resolve(context.Background(), queueEdge(), compliance.FrameworkHigh, "prod")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	reqs := make([]string, 0)
	for _, a := range res.ComplianceActions() {
		reqs = append(reqs, a.Requirement)
	}
	want := []string{"tls-required", "private-network-only", "encryption-at-rest"}
	if !reflect.DeepEqual(reqs, want) {
		t.Errorf("actions = %v, want %v", reqs, want)
	}
}

func TestResolveAllPreservesOrder(t *testing.T) {
	r := testResolver(WithConcurrency(8))

	edges := []graph.Edge{
		queueEdge(),
		{
			Source: "api", SourceType: "service",
			Target: "db", TargetType: "database",
			Directive: manifest.BindingDirective{To: "db", Capability: "db:postgres", Access: manifest.AccessReadWrite},
			BindIndex: 1,
		},
	}
	vg := &graph.ValidatedGraph{Edges: edges}

	results, err := r.ResolveAll(context.Background(), vg, compliance.FrameworkModerate, "prod")
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Metadata().Target != "jobs" || results[1].Metadata().Target != "db" {
		t.Errorf("declaration order not preserved: %q, %q",
			results[0].Metadata().Target, results[1].Metadata().Target)
	}
}

func TestResolveAllFailsOnFirstError(t *testing.T) {
	r := testResolver()

	bad := queueEdge()
	bad.Target = "ghost"
	vg := &graph.ValidatedGraph{Edges: []graph.Edge{queueEdge(), bad}}

	if _, err := r.ResolveAll(context.Background(), vg, compliance.FrameworkCommercial, "prod"); err == nil {
		t.Fatal("expected failure to propagate")
	}
}

// slowSource delays every lookup to exercise the binding time budget.
type slowSource struct {
	delay time.Duration
	data  capability.StaticSource
}

func (s *slowSource) CapabilityData(ctx context.Context, name string) (*capability.Data, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.data[name], nil
}

func TestResolveBindingBudget(t *testing.T) {
	src := &slowSource{delay: 200 * time.Millisecond, data: testSource()}
	r := NewResolver(capability.NewDefaultRegistry(), compliance.NewEnforcer(nil), src,
		WithBindingBudget(10*time.Millisecond))

	_, err := r.Resolve(context.Background(), queueEdge(), compliance.FrameworkCommercial, "prod")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Budget != 10*time.Millisecond {
		t.Errorf("unexpected budget %s", te.Budget)
	}
}

// recordingTracer captures started span names.
type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.mu.Lock()
	t.names = append(t.names, name)
	t.mu.Unlock()
	return t.Tracer.Start(ctx, name, opts...)
}

func (t *recordingTracer) spanCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.names {
		if s == name {
			n++
		}
	}
	return n
}

func TestResolveEmitsBindingSpan(t *testing.T) {
	rec := &recordingTracer{}
	r := testResolver(WithTracer(tracing.NewPipelineTracer(rec)))

	if _, err := r.Resolve(context.Background(), queueEdge(), compliance.FrameworkModerate, "prod"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := rec.spanCount("pipeline.binding"); got != 1 {
		t.Fatalf("expected 1 binding span, got %d (%v)", got, rec.names)
	}

	// A cache hit does not start a new span.
	if _, err := r.Resolve(context.Background(), queueEdge(), compliance.FrameworkModerate, "prod"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := rec.spanCount("pipeline.binding"); got != 1 {
		t.Errorf("expected no span for a cache hit, got %d", got)
	}

	// Failures are traced too.
	edge := queueEdge()
	edge.Target = "ghost"
	if _, err := r.Resolve(context.Background(), edge, compliance.FrameworkModerate, "prod"); err == nil {
		t.Fatal("expected missing capability data to fail")
	}
	if got := rec.spanCount("pipeline.binding"); got != 2 {
		t.Errorf("expected a span for the rejected binding, got %d", got)
	}
}

func TestBindingIDDeterminism(t *testing.T) {
	id := func() string {
		return BindingID("api", "jobs", "queue:sqs", manifest.AccessWrite, compliance.FrameworkModerate, "prod")
	}
	if id() != id() {
		t.Fatal("identical inputs must produce identical identifiers")
	}

	base := id()
	variants := []string{
		BindingID("web", "jobs", "queue:sqs", manifest.AccessWrite, compliance.FrameworkModerate, "prod"),
		BindingID("api", "batch", "queue:sqs", manifest.AccessWrite, compliance.FrameworkModerate, "prod"),
		BindingID("api", "jobs", "storage:s3", manifest.AccessWrite, compliance.FrameworkModerate, "prod"),
		BindingID("api", "jobs", "queue:sqs", manifest.AccessRead, compliance.FrameworkModerate, "prod"),
		BindingID("api", "jobs", "queue:sqs", manifest.AccessWrite, compliance.FrameworkHigh, "prod"),
		BindingID("api", "jobs", "queue:sqs", manifest.AccessWrite, compliance.FrameworkModerate, "dev"),
	}
	seen := map[string]bool{base: true}
	for i, v := range variants {
		if seen[v] {
			t.Errorf("variant %d collided with a previous identifier", i)
		}
		seen[v] = true
	}
}

func TestBindingIDIsNotDelimiterConfusable(t *testing.T) {
	// The identity tuple is unit-separated, so shifting characters across
	// field boundaries must still change the identifier.
	a := BindingID("ab", "c", "queue:sqs", manifest.AccessRead, compliance.FrameworkCommercial, "prod")
	b := BindingID("a", "bc", "queue:sqs", manifest.AccessRead, compliance.FrameworkCommercial, "prod")
	if a == b {
		t.Error("field-boundary shift produced the same identifier")
	}
}
