package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing the tuning deployment.
const (
	DecoderKey  = attribute.Key("kwstune.decoder")
	KeywordsKey = attribute.Key("kwstune.keywords")
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName defaults to "kwstune".
	ServiceName    string
	ServiceVersion string

	// Decoder and Keywords are attached to every exported series so scrapes
	// from several tuners can be told apart.
	Decoder  string
	Keywords []string

	// Registerer receives the Prometheus collector. Defaults to
	// prometheus.DefaultRegisterer, which [MetricsHandler] serves.
	Registerer prometheus.Registerer

	// TraceExporter is optional; without it spans are recorded but not
	// exported.
	TraceExporter sdktrace.SpanExporter
}

func (cfg ProviderConfig) resource() (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "kwstune"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Decoder != "" {
		attrs = append(attrs, DecoderKey.String(cfg.Decoder))
	}
	if len(cfg.Keywords) > 0 {
		attrs = append(attrs, KeywordsKey.StringSlice(cfg.Keywords))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// InitProvider installs global meter and tracer providers. Metrics are
// bridged to Prometheus through cfg.Registerer. The returned function flushes
// and shuts down both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsHandlerFor serves the metrics gathered by g.
func MetricsHandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
