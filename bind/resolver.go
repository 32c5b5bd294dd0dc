package bind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/stackplan/capability"
	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/graph"
	"github.com/GoCodeAlone/stackplan/manifest"
	"github.com/GoCodeAlone/stackplan/observability/tracing"
)

// defaultConcurrency bounds the binding worker pool when the caller does
// not set a limit.
const defaultConcurrency = 4

// MissingCapabilityDataError reports a binding whose target has no
// published capability data yet. The resolver never triggers synthesis;
// it only consumes what the synthesizer has published.
type MissingCapabilityDataError struct {
	// Component is the target component name.
	Component string

	// Capability is the requested capability.
	Capability string
}

// Error implements the error interface.
func (e *MissingCapabilityDataError) Error() string {
	return fmt.Sprintf("no capability data published for component %q (capability %q)", e.Component, e.Capability)
}

// TimeoutError reports a binding resolution that exceeded its configured
// time budget.
type TimeoutError struct {
	// Source and Target name the binding's endpoints.
	Source string
	Target string

	// Budget is the configured per-binding time budget.
	Budget time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("binding %s -> %s exceeded resolution time budget of %s", e.Source, e.Target, e.Budget)
}

// cacheKey is the binding-context identity the result cache is keyed by.
type cacheKey struct {
	source      string
	target      string
	capability  string
	access      manifest.AccessLevel
	framework   compliance.Framework
	environment string
}

// resultCache is an append-only cache of resolved bindings. A computed
// result for a key is never overwritten: concurrent resolutions of the
// same key converge on the first inserted winner.
type resultCache struct {
	mu      sync.Mutex
	results map[cacheKey]*Result
}

func newResultCache() *resultCache {
	return &resultCache{results: make(map[cacheKey]*Result)}
}

// get returns the cached result for a key, if any.
func (c *resultCache) get(key cacheKey) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[key]
	return r, ok
}

// insert stores a result unless one already exists; the stored result
// (existing or new) is returned.
func (c *resultCache) insert(key cacheKey, r *Result) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.results[key]; ok {
		return existing
	}
	c.results[key] = r
	return r
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency bounds the binding worker pool.
func WithConcurrency(n int) Option {
	return func(r *Resolver) { r.concurrency = n }
}

// WithBindingBudget sets the per-binding resolution time budget. Zero
// disables the budget.
func WithBindingBudget(d time.Duration) Option {
	return func(r *Resolver) { r.budget = d }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithTracer sets the tracer emitting per-binding spans.
func WithTracer(tracer *tracing.PipelineTracer) Option {
	return func(r *Resolver) { r.tracer = tracer }
}

// Resolver turns validated bind edges into frozen binding results. It is
// safe for concurrent use; the append-only result cache is its only
// shared mutable state.
type Resolver struct {
	strategies  *capability.Registry
	enforcer    *compliance.Enforcer
	source      capability.Source
	cache       *resultCache
	logger      *slog.Logger
	tracer      *tracing.PipelineTracer
	concurrency int
	budget      time.Duration
}

// NewResolver creates a binding resolver.
func NewResolver(strategies *capability.Registry, enforcer *compliance.Enforcer, source capability.Source, opts ...Option) *Resolver {
	r := &Resolver{
		strategies:  strategies,
		enforcer:    enforcer,
		source:      source,
		cache:       newResultCache(),
		logger:      slog.Default(),
		tracer:      tracing.NewPipelineTracer(nil),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	return r
}

// ResolveAll resolves every edge of the validated graph under a bounded
// worker pool. The returned results preserve the graph's declaration
// order regardless of internal execution order. The first failure
// cancels the remaining work and fails the whole resolution.
func (r *Resolver) ResolveAll(ctx context.Context, vg *graph.ValidatedGraph, framework compliance.Framework, environment string) ([]*Result, error) {
	results := make([]*Result, len(vg.Edges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range vg.Edges {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Resolve(gctx, vg.Edges[i], framework, environment)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Resolve resolves one edge, consulting the result cache first. The
// per-binding state machine runs under the configured time budget.
func (r *Resolver) Resolve(ctx context.Context, edge graph.Edge, framework compliance.Framework, environment string) (*Result, error) {
	key := cacheKey{
		source:      edge.Source,
		target:      edge.Target,
		capability:  edge.Directive.Capability,
		access:      edge.Directive.Access,
		framework:   framework,
		environment: environment,
	}
	if cached, ok := r.cache.get(key); ok {
		return cached, nil
	}

	ctx, span := r.tracer.StartBinding(ctx, edge.Source, edge.Target, edge.Directive.Capability)
	defer span.End()

	rctx := ctx
	if r.budget > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	result, err := r.resolveEdge(rctx, edge, framework, environment)
	if err != nil {
		if r.budget > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = &TimeoutError{Source: edge.Source, Target: edge.Target, Budget: r.budget}
		}
		r.tracer.RecordError(span, err)
		r.logger.Debug("binding rejected",
			"source", edge.Source,
			"target", edge.Target,
			"capability", edge.Directive.Capability,
			"state", string(StateRejected),
			"error", err)
		return nil, err
	}
	r.tracer.SetSuccess(span)

	// Write-once: a concurrent resolution of the same key may have won;
	// every caller converges on the stored result.
	return r.cache.insert(key, result), nil
}

// resolveEdge runs the binding state machine for one edge.
func (r *Resolver) resolveEdge(ctx context.Context, edge graph.Edge, framework compliance.Framework, environment string) (*Result, error) {
	step := func(s State) {
		r.logger.Debug("binding state",
			"source", edge.Source,
			"target", edge.Target,
			"capability", edge.Directive.Capability,
			"state", string(s))
	}
	step(StatePending)

	step(StateResolvingData)
	data, err := r.source.CapabilityData(ctx, edge.Target)
	if err != nil {
		return nil, fmt.Errorf("fetching capability data for %q: %w", edge.Target, err)
	}
	if data == nil {
		return nil, &MissingCapabilityDataError{Component: edge.Target, Capability: edge.Directive.Capability}
	}

	step(StateStrategySelected)
	strategy, err := r.strategies.Lookup(edge.SourceType, edge.Directive.Capability)
	if err != nil {
		return nil, err
	}

	step(StateComplianceChecked)
	opts, actions, err := r.enforcer.EnforceBinding(framework, compliance.BindingCheck{
		Source:            edge.Source,
		Target:            edge.Target,
		Capability:        edge.Directive.Capability,
		Access:            edge.Directive.Access,
		TargetRequiresTLS: data.RequiresTLS,
		TargetSupportsTLS: data.Endpoint.SupportsTLS,
		DirectiveTLS:      directiveTLS(edge.Directive.Options),
	})
	if err != nil {
		return nil, err
	}

	resolution, err := strategy.Resolve(ctx, capability.ResolveInput{
		Source:      capability.ComponentRef{Name: edge.Source, Type: edge.SourceType},
		Target:      capability.ComponentRef{Name: edge.Target, Type: edge.TargetType},
		Directive:   edge.Directive,
		Data:        *data,
		Options:     opts,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", strategy.Name(), err)
	}

	step(StateResolved)
	meta := Metadata{
		BindingID:   BindingID(edge.Source, edge.Target, edge.Directive.Capability, edge.Directive.Access, framework, environment),
		Source:      edge.Source,
		Target:      edge.Target,
		Capability:  edge.Directive.Capability,
		Access:      edge.Directive.Access,
		Framework:   framework,
		Environment: environment,
		Strategy:    strategy.Name(),
	}

	r.logger.Debug("binding resolved",
		"source", edge.Source,
		"target", edge.Target,
		"capability", edge.Directive.Capability,
		"strategy", strategy.Name(),
		"bindingId", meta.BindingID)

	return newResult(meta, resolution, actions), nil
}

// directiveTLS extracts the directive's explicit tls option; nil means
// the directive does not mention TLS.
func directiveTLS(options map[string]any) *bool {
	v, ok := options["tls"]
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}
