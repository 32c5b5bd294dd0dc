// Package stackplan resolves declarative service manifests into fully
// hydrated, policy-checked execution plans. The pipeline is a strict
// stage sequence (parse, schema-validate, hydrate, semantic-validate,
// bind) where each stage consumes the previous stage's output and
// either returns a refined structure or fails the whole resolution.
package stackplan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/stackplan/bind"
	"github.com/GoCodeAlone/stackplan/capability"
	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/graph"
	"github.com/GoCodeAlone/stackplan/hydrate"
	"github.com/GoCodeAlone/stackplan/manifest"
	"github.com/GoCodeAlone/stackplan/observability/tracing"
	"github.com/GoCodeAlone/stackplan/schema"
	"go.opentelemetry.io/otel/trace"
)

// Config assembles a Resolver. CapabilitySource is required; everything
// else has working defaults.
type Config struct {
	// CapabilitySource supplies published capability data per component.
	// Required: binding resolution consumes it and never triggers
	// synthesis itself.
	CapabilitySource capability.Source

	// TypeRegistry is the component type registry; nil means the
	// built-in registry.
	TypeRegistry schema.TypeRegistry

	// BaseSchema is the generic manifest schema composed with the
	// registry's config schemas; nil means the built-in base schema.
	BaseSchema *schema.Document

	// Strategies is the binding strategy registry; nil means the
	// built-in strategies.
	Strategies *capability.Registry

	// PlatformDefaults is the platform-wide configuration default layer.
	PlatformDefaults map[string]any

	// AllowEnvFallback enables the "default" entry fallback for
	// per-environment config maps.
	AllowEnvFallback bool

	// CyclePolicy selects the cycle-detection edge set.
	CyclePolicy graph.CyclePolicy

	// CompileBudget bounds schema compilation; zero disables it.
	CompileBudget time.Duration

	// BindingBudget bounds each binding resolution; zero disables it.
	BindingBudget time.Duration

	// Concurrency bounds the hydration and binding worker pools; <= 0
	// means the package defaults.
	Concurrency int

	// Logger receives pipeline progress; nil falls back to
	// slog.Default.
	Logger *slog.Logger

	// Tracer emits pipeline spans; nil uses the global tracer provider.
	Tracer trace.Tracer
}

// Resolver runs the manifest resolution pipeline. It holds the compiled
// master schema and the append-only binding result cache, so one
// Resolver should be reused across manifests. Safe for concurrent use.
type Resolver struct {
	validator *schema.Validator
	registry  schema.TypeRegistry
	binder    *bind.Resolver
	tracer    *tracing.PipelineTracer
	logger    *slog.Logger
	cfg       Config
}

// New builds a Resolver from the configuration, composing and compiling
// the master schema once.
func New(cfg Config) (*Resolver, error) {
	if cfg.CapabilitySource == nil {
		return nil, fmt.Errorf("stackplan: Config.CapabilitySource is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.TypeRegistry
	if registry == nil {
		registry = schema.NewDefaultTypeRegistry(logger)
	}
	base := cfg.BaseSchema
	if base == nil {
		base = schema.BaseManifestSchema()
	}
	strategies := cfg.Strategies
	if strategies == nil {
		strategies = capability.NewDefaultRegistry()
	}

	validator, err := schema.NewValidator(base, registry,
		schema.WithCompileBudget(cfg.CompileBudget),
		schema.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("stackplan: building schema validator: %w", err)
	}

	tracer := tracing.NewPipelineTracer(cfg.Tracer)
	binder := bind.NewResolver(strategies, compliance.NewEnforcer(logger), cfg.CapabilitySource,
		bind.WithConcurrency(cfg.Concurrency),
		bind.WithBindingBudget(cfg.BindingBudget),
		bind.WithLogger(logger),
		bind.WithTracer(tracer))

	return &Resolver{
		validator: validator,
		registry:  registry,
		binder:    binder,
		tracer:    tracer,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Resolve runs the full pipeline for one manifest and target
// environment. Cancellation is checked at every stage boundary; a
// failed stage fails the whole resolution with a StageError wrapping
// the stage's typed error.
func (r *Resolver) Resolve(ctx context.Context, manifestText []byte, environment string) (*Plan, error) {
	ctx, span := r.tracer.StartResolution(ctx, "", environment)
	defer span.End()

	m, err := r.runFrontend(ctx, manifestText)
	if err != nil {
		r.tracer.RecordError(span, err)
		return nil, err
	}

	hydrated, err := runStage(ctx, r, StageHydrate, func(ctx context.Context) (*hydrate.Result, error) {
		return hydrate.Hydrate(ctx, m, environment, hydrate.Options{
			Registry:         r.registry,
			PlatformDefaults: r.cfg.PlatformDefaults,
			AllowEnvFallback: r.cfg.AllowEnvFallback,
			Concurrency:      r.cfg.Concurrency,
			Logger:           r.logger,
		})
	})
	if err != nil {
		r.tracer.RecordError(span, err)
		return nil, err
	}

	validated, err := runStage(ctx, r, StageGraph, func(ctx context.Context) (*graph.ValidatedGraph, error) {
		return graph.Validate(hydrated.Manifest, graph.Options{
			CyclePolicy: r.cfg.CyclePolicy,
			Logger:      r.logger,
		})
	})
	if err != nil {
		r.tracer.RecordError(span, err)
		return nil, err
	}

	results, err := runStage(ctx, r, StageBind, func(ctx context.Context) ([]*bind.Result, error) {
		return r.binder.ResolveAll(ctx, validated, hydrated.Framework, environment)
	})
	if err != nil {
		r.tracer.RecordError(span, err)
		return nil, err
	}

	plan := &Plan{
		Service:     hydrated.Manifest.Service,
		Owner:       hydrated.Manifest.Owner,
		Environment: environment,
		Framework:   hydrated.Framework,
		Components:  hydrated.Manifest.Components,
		Bindings:    results,
	}

	r.logger.Info("manifest resolved",
		"service", plan.Service,
		"environment", environment,
		"framework", string(plan.Framework),
		"components", len(plan.Components),
		"bindings", len(plan.Bindings))
	r.tracer.SetSuccess(span)
	return plan, nil
}

// runFrontend runs the parse and schema-validation stages, returning
// the typed manifest view of the document.
func (r *Resolver) runFrontend(ctx context.Context, manifestText []byte) (*manifest.Manifest, error) {
	doc, err := runStage(ctx, r, StageParse, func(ctx context.Context) (*manifest.Document, error) {
		return manifest.Parse(manifestText)
	})
	if err != nil {
		return nil, err
	}

	return runStage(ctx, r, StageSchema, func(ctx context.Context) (*manifest.Manifest, error) {
		if err := r.validator.Validate(doc.Raw); err != nil {
			return nil, err
		}
		return doc.Decode()
	})
}

// runStage executes one pipeline stage with a cancellation check at the
// boundary, a stage span, and StageError wrapping.
func runStage[T any](ctx context.Context, r *Resolver, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, newStageError(stage, err)
	}

	ctx, span := r.tracer.StartStage(ctx, string(stage))
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		r.tracer.RecordError(span, err)
		return zero, newStageError(stage, err)
	}
	r.tracer.SetSuccess(span)
	return out, nil
}
