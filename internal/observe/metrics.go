// Package observe provides the observability primitives for kwstune:
// OpenTelemetry metrics, tracing, trace-aware structured logging and HTTP
// middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider], so a tuning server can be scraped on /metrics.
// A package-level [DefaultMetrics] instance exists for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kwstune metrics.
const meterName = "github.com/MrWong99/kwstune"

// Metrics holds all OpenTelemetry metric instruments for the tuner.
// All fields are safe for concurrent use.
type Metrics struct {
	// DecodeDuration tracks a single decoder pass over one sample.
	DecodeDuration metric.Float64Histogram

	// StepDuration tracks one full controller step (all keywords).
	StepDuration metric.Float64Histogram

	// Steps counts controller transitions. Use with attribute:
	//   attribute.String("transition", "advance"|"refine"|"done"|"error")
	Steps metric.Int64Counter

	// Trials counts recorded threshold trials. Use with attribute:
	//   attribute.String("keyword", ...)
	Trials metric.Int64Counter

	// DecoderErrors counts failed decoder passes. Use with attributes:
	//   attribute.String("decoder", ...), attribute.String("keyword", ...)
	DecoderErrors metric.Int64Counter

	// TrialF1 reports the F1 of the most recent trial per keyword.
	TrialF1 metric.Float64Gauge

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// decodeBuckets covers sub-second clips up to long recordings on CPU.
var decodeBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// stepBuckets covers steps of a few samples up to the 100-sample budget.
var stepBuckets = []float64{
	1, 5, 10, 30, 60, 120, 300, 600, 1200, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DecodeDuration, err = m.Float64Histogram("kwstune.decode.duration",
		metric.WithDescription("Latency of one decoder pass over a corpus sample."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(decodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StepDuration, err = m.Float64Histogram("kwstune.step.duration",
		metric.WithDescription("Latency of one search step across all keywords."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stepBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Steps, err = m.Int64Counter("kwstune.steps",
		metric.WithDescription("Total search steps by transition."),
	); err != nil {
		return nil, err
	}
	if met.Trials, err = m.Int64Counter("kwstune.trials",
		metric.WithDescription("Total recorded threshold trials by keyword."),
	); err != nil {
		return nil, err
	}
	if met.DecoderErrors, err = m.Int64Counter("kwstune.decoder.errors",
		metric.WithDescription("Total failed decoder passes by decoder and keyword."),
	); err != nil {
		return nil, err
	}

	if met.TrialF1, err = m.Float64Gauge("kwstune.trial.f1",
		metric.WithDescription("F1 score of the most recent trial by keyword."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("kwstune.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStep records one controller transition and its duration.
func (m *Metrics) RecordStep(ctx context.Context, transition string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("transition", transition))
	m.Steps.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTrial records a completed threshold trial.
func (m *Metrics) RecordTrial(ctx context.Context, keyword string, threshold int, f1 float64) {
	m.Trials.Add(ctx, 1, metric.WithAttributes(attribute.String("keyword", keyword)))
	m.TrialF1.Record(ctx, f1, metric.WithAttributes(
		attribute.String("keyword", keyword),
		attribute.Int("threshold", threshold),
	))
}

// RecordDecode records the latency of one decoder pass. A non-nil err also
// increments [Metrics.DecoderErrors].
func (m *Metrics) RecordDecode(ctx context.Context, decoder, keyword string, d time.Duration, err error) {
	m.DecodeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("decoder", decoder)))
	if err != nil {
		m.DecoderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("decoder", decoder),
			attribute.String("keyword", keyword),
		))
	}
}
