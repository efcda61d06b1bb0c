package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func useGlobalTracer(t *testing.T, tp *sdktrace.TracerProvider) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_CreatesSpan(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	useGlobalTracer(t, tp)

	ctx, span := StartSpan(context.Background(), "corpus.fetch")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "corpus.fetch" {
		t.Fatalf("spans = %+v, want one named corpus.fetch", spans)
	}
}

func TestStepSpan_CarriesTransition(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	useGlobalTracer(t, tp)

	ctx, step := StartStepSpan(context.Background(), -4, 20)
	_, trial := StartTrialSpan(ctx, "NAOMI", -4, 20)
	EndSpan(trial, nil)
	EndStepSpan(step, "refine", nil)

	_, failed := StartStepSpan(context.Background(), 2, 40)
	EndStepSpan(failed, "advance", errors.New("corpus unreachable"))

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	trialSpan, stepSpan, failedSpan := spans[0], spans[1], spans[2]

	if trialSpan.Name != TrialSpan || trialSpan.Parent.SpanID() != stepSpan.SpanContext.SpanID() {
		t.Errorf("trial span %q is not a child of the step span", trialSpan.Name)
	}
	wantTrial := map[attribute.Key]attribute.Value{
		KeywordKey:   attribute.StringValue("NAOMI"),
		ThresholdKey: attribute.IntValue(-4),
		SamplesKey:   attribute.IntValue(20),
	}
	for _, a := range trialSpan.Attributes {
		if want, ok := wantTrial[a.Key]; ok && a.Value != want {
			t.Errorf("trial %s = %v, want %v", a.Key, a.Value.Emit(), want.Emit())
		}
		delete(wantTrial, a.Key)
	}
	if len(wantTrial) != 0 {
		t.Errorf("trial span missing attributes %v", wantTrial)
	}

	if stepSpan.Name != StepSpan {
		t.Errorf("step span name = %q", stepSpan.Name)
	}
	if got := attrString(stepSpan.Attributes, TransitionKey); got != "refine" {
		t.Errorf("transition = %q, want refine", got)
	}
	if got := attrString(failedSpan.Attributes, TransitionKey); got != "" {
		t.Errorf("failed step transition = %q, want none", got)
	}
	if failedSpan.Status.Code != codes.Error {
		t.Errorf("failed step status = %+v", failedSpan.Status)
	}
}

func attrString(attrs []attribute.KeyValue, key attribute.Key) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestEndSpan_RecordsError(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	useGlobalTracer(t, tp)

	_, ok := StartSpan(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	EndSpan(failed, errors.New("decoder crashed"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("successful span marked as error")
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "decoder crashed" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no error event")
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	tp, _ := newTestTracerProvider(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "log-test")
	defer span.End()
	Logger(ctx).Info("step finished")

	logged := buf.String()
	if !strings.Contains(logged, "trace_id=") || !strings.Contains(logged, "span_id=") {
		t.Errorf("log output missing trace ids: %s", logged)
	}
}

func TestLogger_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("step finished")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log output should not contain trace_id, got: %s", buf.String())
	}
}

func TestTrialLogger_TagsTrial(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	TrialLogger(context.Background(), "NAOMI", -3).Info("sample decoded")
	if got := buf.String(); !strings.Contains(got, "keyword=NAOMI") || !strings.Contains(got, "threshold=-3") {
		t.Errorf("log output missing trial attributes: %s", got)
	}
}
