// Package otel holds the OpenTelemetry instruments of the bootstrap pipeline
// and the optional OTLP export setup.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies jailrun in exported telemetry.
const ServiceName = "jailrun"

// Config controls OTLP export.
type Config struct {
	// Endpoint is the host:port of an OTLP gRPC collector. Empty disables export.
	Endpoint string
	Insecure bool
	Version  string
}

// Provider hands out meters and tracers for one process.
type Provider struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// LoggerProvider is nil when export is disabled.
	LoggerProvider otellog.LoggerProvider

	shutdown func(context.Context) error
}

// Meter returns the jailrun meter.
func (p *Provider) Meter() metric.Meter {
	return p.MeterProvider.Meter(ServiceName)
}

// Tracer returns the jailrun tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(ServiceName)
}

// Shutdown flushes pending telemetry. It is a no-op when export is disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds the telemetry providers. Without an endpoint it returns the
// global providers, which are no-ops unless the embedding process installed
// real ones. With an endpoint it exports metrics, spans and log records over
// OTLP gRPC and installs the meter and tracer providers globally.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{
			MeterProvider:  otelapi.GetMeterProvider(),
			TracerProvider: otelapi.GetTracerProvider(),
		}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", cfg.Version),
	)

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create trace exporter: %w", err), metricExporter.Shutdown(ctx))
	}
	logExporter, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("create log exporter: %w", err),
			traceExporter.Shutdown(ctx),
			metricExporter.Shutdown(ctx),
		)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	otelapi.SetMeterProvider(meterProvider)
	otelapi.SetTracerProvider(tracerProvider)

	// Go runtime memory and GC metrics ride along with the pipeline metrics.
	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, errors.Join(
			fmt.Errorf("start runtime metrics: %w", err),
			loggerProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return &Provider{
		MeterProvider:  meterProvider,
		TracerProvider: tracerProvider,
		LoggerProvider: loggerProvider,
		shutdown: func(ctx context.Context) error {
			return errors.Join(
				loggerProvider.Shutdown(ctx),
				tracerProvider.Shutdown(ctx),
				meterProvider.Shutdown(ctx),
			)
		},
	}, nil
}
