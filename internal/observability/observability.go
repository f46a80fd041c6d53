// Package observability wires OpenTelemetry metrics and tracing for checkrun.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

const defaultServiceName = "checkrun"

// Telemetry owns the SDK providers and the engine's instruments.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	traceProvider *sdktrace.TracerProvider
	tracer        trace.Tracer

	runsTotal     metric.Int64Counter
	jobsTotal     metric.Int64Counter
	stepsTotal    metric.Int64Counter
	cacheRestores metric.Int64Counter
	eventsSkipped metric.Int64Counter
}

// Init sets up OTLP gRPC exporters and global providers. Returns nil
// Telemetry (a safe no-op) when the config is absent or disabled.
func Init(ctx context.Context, cfg *types.ObservabilityConfig) (*Telemetry, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	var metricOpts []otlpmetricgrpc.Option
	var traceOpts []otlptracegrpc.Option
	if cfg.Endpoint != "" {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		traceOpts = append(traceOpts, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	}

	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	t := &Telemetry{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		),
		traceProvider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExp),
		),
	}
	otel.SetMeterProvider(t.meterProvider)
	otel.SetTracerProvider(t.traceProvider)
	t.tracer = t.traceProvider.Tracer(serviceName)

	meter := t.meterProvider.Meter(serviceName)
	if t.runsTotal, err = meter.Int64Counter("checkrun.runs.total"); err != nil {
		return nil, err
	}
	if t.jobsTotal, err = meter.Int64Counter("checkrun.jobs.total"); err != nil {
		return nil, err
	}
	if t.stepsTotal, err = meter.Int64Counter("checkrun.steps.total"); err != nil {
		return nil, err
	}
	if t.cacheRestores, err = meter.Int64Counter("checkrun.cache.restores"); err != nil {
		return nil, err
	}
	if t.eventsSkipped, err = meter.Int64Counter("checkrun.events.skipped"); err != nil {
		return nil, err
	}
	return t, nil
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var firstErr error
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := t.traceProvider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// StartSpan begins a run-level span. Safe on nil Telemetry.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name)
}

// RecordRun counts a finished run by terminal status. Safe on nil Telemetry.
func (t *Telemetry) RecordRun(ctx context.Context, workflow string, status types.RunStatus) {
	if t == nil {
		return
	}
	t.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("status", string(status)),
	))
}

// RecordJob counts a finished job by terminal status. Safe on nil Telemetry.
func (t *Telemetry) RecordJob(ctx context.Context, workflow string, status types.JobStatus) {
	if t == nil {
		return
	}
	t.jobsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("status", string(status)),
	))
}

// EventSink returns an audit-event callback that feeds the step and cache
// counters. Safe on nil Telemetry (returns a no-op).
func (t *Telemetry) EventSink() func(types.Event) {
	if t == nil {
		return func(types.Event) {}
	}
	ctx := context.Background()
	return func(ev types.Event) {
		switch ev.Kind {
		case types.EventStepCompleted:
			t.stepsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", ev.Status)))
		case types.EventCacheRestored:
			t.cacheRestores.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", true)))
		case types.EventCacheMiss:
			t.cacheRestores.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", false)))
		case types.EventSkipped:
			t.eventsSkipped.Add(ctx, 1)
		}
	}
}
