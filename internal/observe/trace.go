package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/kwstune"

// Span attribute keys shared by the tuning spans.
const (
	KeywordKey    = attribute.Key("kwstune.keyword")
	ThresholdKey  = attribute.Key("kwstune.threshold")
	SamplesKey    = attribute.Key("kwstune.samples")
	CursorKey     = attribute.Key("kwstune.cursor")
	TransitionKey = attribute.Key("kwstune.transition")
)

// Span names.
const (
	StepSpan  = "tuning.step"
	TrialSpan = "tuning.evaluate"
)

// Tracer returns the kwstune [trace.Tracer] from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it with [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartStepSpan starts the span covering one controller step at cursor with
// the given per-group sample budget.
func StartStepSpan(ctx context.Context, cursor, samples int) (context.Context, trace.Span) {
	return StartSpan(ctx, StepSpan, trace.WithAttributes(
		CursorKey.Int(cursor),
		SamplesKey.Int(samples),
	))
}

// StartTrialSpan starts the span covering the evaluation of one
// (keyword, threshold) pair.
func StartTrialSpan(ctx context.Context, keyword string, threshold, samples int) (context.Context, trace.Span) {
	return StartSpan(ctx, TrialSpan, trace.WithAttributes(
		KeywordKey.String(keyword),
		ThresholdKey.Int(threshold),
		SamplesKey.Int(samples),
	))
}

// EndStepSpan tags span with the transition the step took and ends it. A
// failed step carries no transition.
func EndStepSpan(span trace.Span, transition string, err error) {
	if err == nil && transition != "" {
		span.SetAttributes(TransitionKey.String(transition))
	}
	EndSpan(span, err)
}

// EndSpan records err on span (if non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the active span in ctx, or "".
// HTTP responses carry it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger, tagged with the trace and span ids of
// the span in ctx when there is one.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// TrialLogger returns [Logger] for ctx with the keyword and threshold of the
// trial being evaluated.
func TrialLogger(ctx context.Context, keyword string, threshold int) *slog.Logger {
	return Logger(ctx).With("keyword", keyword, "threshold", threshold)
}
