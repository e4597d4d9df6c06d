// Package observability provides OpenTelemetry tracing and metrics for
// export and verification workloads: counters and latency per operation,
// plus a dedicated tamper-detection counter.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "proofpack"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // gRPC endpoint, e.g. "localhost:4317"
	SampleRate     float64 // 0.0 to 1.0
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool // plaintext OTLP, dev only
}

// DefaultConfig returns development defaults. Telemetry is off unless
// explicitly enabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "proofpack",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider manages trace and metric providers. The zero-value (disabled)
// provider is safe to use; every recording method no-ops.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	exportCounter metric.Int64Counter
	verifyCounter metric.Int64Counter
	tamperCounter metric.Int64Counter
	durationHist  metric.Float64Histogram
	activeExports metric.Int64UpDownCounter
}

// New creates a provider. With config.Enabled false no exporters are dialed.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentationName,
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error

	p.exportCounter, err = p.meter.Int64Counter("proofpack.exports.total",
		metric.WithDescription("Bundle exports attempted"),
		metric.WithUnit("{export}"))
	if err != nil {
		return err
	}

	p.verifyCounter, err = p.meter.Int64Counter("proofpack.verifications.total",
		metric.WithDescription("Bundle verifications by outcome"),
		metric.WithUnit("{verification}"))
	if err != nil {
		return err
	}

	p.tamperCounter, err = p.meter.Int64Counter("proofpack.tamper.detected.total",
		metric.WithDescription("Verifications that found an integrity failure"),
		metric.WithUnit("{verification}"))
	if err != nil {
		return err
	}

	p.durationHist, err = p.meter.Float64Histogram("proofpack.operation.duration",
		metric.WithDescription("Export and verification latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0))
	if err != nil {
		return err
	}

	p.activeExports, err = p.meter.Int64UpDownCounter("proofpack.exports.active",
		metric.WithDescription("Exports currently in flight"),
		metric.WithUnit("{export}"))
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(instrumentationName)
	}
	return p.meter
}

// StartSpan starts a span under the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordExport counts one export attempt and its latency.
func (p *Provider) RecordExport(ctx context.Context, duration time.Duration, err error, attrs ...attribute.KeyValue) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	allAttrs := append(attrs, attribute.String("status", status))
	if p.exportCounter != nil {
		p.exportCounter.Add(ctx, 1, metric.WithAttributes(allAttrs...))
	}
	if p.durationHist != nil {
		allAttrs = append(allAttrs, attribute.String("operation", "export"))
		p.durationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(allAttrs...))
	}
}

// RecordVerification counts one verification by outcome. Any outcome other
// than valid or incomplete means the bundle failed an integrity check and
// also bumps the tamper counter.
func (p *Provider) RecordVerification(ctx context.Context, outcome string, duration time.Duration, attrs ...attribute.KeyValue) {
	allAttrs := append(attrs, attribute.String("outcome", outcome))
	if p.verifyCounter != nil {
		p.verifyCounter.Add(ctx, 1, metric.WithAttributes(allAttrs...))
	}
	if p.tamperCounter != nil && outcome != "VALID" && outcome != "INCOMPLETE" {
		p.tamperCounter.Add(ctx, 1, metric.WithAttributes(allAttrs...))
	}
	if p.durationHist != nil {
		allAttrs = append(allAttrs, attribute.String("operation", "verify"))
		p.durationHist.Record(ctx, duration.Seconds(), metric.WithAttributes(allAttrs...))
	}
}

// TrackExport opens a span for one export and returns a completion func.
func (p *Provider) TrackExport(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.StartSpan(ctx, "proofpack.export",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))

	if p.activeExports != nil {
		p.activeExports.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.activeExports != nil {
			p.activeExports.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		p.RecordExport(ctx, time.Since(start), err, attrs...)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
