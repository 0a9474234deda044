package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/offszn/marketplace/internal"
)

const ServiceVersion = "1.0.0"

// ShutdownFunc flushes and stops whatever providers Setup installed.
type ShutdownFunc func(context.Context) error

// Setup installs global tracer and meter providers when enabled. With both
// disabled the otel no-op providers stay in place and instruments cost nothing.
func Setup(ctx context.Context, cfg internal.ObservabilityConfig) (ShutdownFunc, error) {
	var shutdowns []ShutdownFunc

	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if !cfg.Tracing.Enabled && !cfg.Metrics.Enabled {
		return shutdown, nil
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = internal.DefaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return shutdown, fmt.Errorf("failed to build otel resource: %w", err)
	}

	if cfg.Tracing.Enabled {
		tp, err := initTracer(ctx, cfg.Tracing, res)
		if err != nil {
			return shutdown, err
		}
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if cfg.Metrics.Enabled {
		mp, err := initMetrics(ctx, cfg.Metrics, res)
		if err != nil {
			return shutdown, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg internal.TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMetrics(ctx context.Context, cfg internal.MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp, nil
}
