// Package tracing provides OpenTelemetry span helpers for the manifest
// resolution pipeline.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PipelineTracer provides convenience methods for creating spans around
// resolution pipeline stages and binding resolution units.
type PipelineTracer struct {
	tracer trace.Tracer
}

// NewPipelineTracer creates a PipelineTracer. If tracer is nil, the
// global tracer provider is used.
func NewPipelineTracer(tracer trace.Tracer) *PipelineTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("stackplan.pipeline")
	}
	return &PipelineTracer{tracer: tracer}
}

// StartResolution begins the root span for one manifest resolution.
func (p *PipelineTracer) StartResolution(ctx context.Context, service, environment string) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, "pipeline.resolve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.service", service),
			attribute.String("pipeline.environment", environment),
		),
	)
	return ctx, span
}

// StartStage begins a child span for a pipeline stage.
func (p *PipelineTracer) StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, "pipeline.stage."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.stage", stage),
		),
	)
	return ctx, span
}

// StartBinding begins a span for one binding resolution unit.
func (p *PipelineTracer) StartBinding(ctx context.Context, source, target, capability string) (context.Context, trace.Span) {
	ctx, span := p.tracer.Start(ctx, "pipeline.binding",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("binding.source", source),
			attribute.String("binding.target", target),
			attribute.String("binding.capability", capability),
		),
	)
	return ctx, span
}

// RecordError records an error on the given span and sets the span
// status.
func (p *PipelineTracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func (p *PipelineTracer) SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
