// Package telemetry implements §11's observability surface: a single
// Provider wired into the orchestrator, retrieval, and executor layers so
// every agent invocation, store search, rate-limiter wait, and synthesis
// conflict becomes an OTel span or counter, without any of those packages
// importing otel directly.
//
// It is grounded on the teacher's telemetry.OTelProvider
// (_examples/itsneelabh-gomind/telemetry/otel.go): a resource built with
// semconv attributes, a batching trace exporter, and a set of named metric
// instruments cached on the provider. Unlike the teacher, this module's
// go.mod only carries the gRPC OTLP trace exporter
// (otlptracegrpc, not otlptracehttp), so traces export over gRPC; metrics
// are recorded against the bare otel/metric API's global MeterProvider
// rather than a dedicated OTLP metric exporter, since no metric exporter
// package is part of this module's dependency set and introducing one
// solely for this package would not be grounded in the examples actually
// wired elsewhere in this repo.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/varunalfred/Finmentor-sub000/registry"
	"github.com/varunalfred/Finmentor-sub000/retrieval"
)

const instrumentationName = "finmentor-orchestrator"

// instruments is the cached set of named metric instruments, mirroring the
// teacher's MetricInstruments cache so every RecordX call reuses the same
// instrument instead of re-registering one per call.
type instruments struct {
	agentInvocations  metric.Int64Counter
	agentDuration     metric.Float64Histogram
	storeSearches     metric.Int64Counter
	rateLimiterWaits  metric.Float64Histogram
	synthesisConflict metric.Int64Counter
}

// Provider implements the Telemetry interfaces declared by orchestrator,
// retrieval, and executor, plus the session.thoughtForwarder composition
// seam, behind one OTel-backed type.
type Provider struct {
	tracer        trace.Tracer
	traceProvider *sdktrace.TracerProvider
	metrics       instruments
}

// New builds a Provider whose traces export to endpoint over OTLP/gRPC.
// serviceName must be non-empty; it becomes the service.name resource
// attribute every span and metric carries.
func New(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry.New: service name cannot be empty")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String("1.0.0"),
	)

	ctx := context.Background()
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry.New: create trace exporter for %s: %w", endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	meter := otel.Meter(instrumentationName)
	insts, err := newInstruments(meter)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry.New: create metric instruments: %w", err)
	}

	return &Provider{
		tracer:        tp.Tracer(instrumentationName),
		traceProvider: tp,
		metrics:       insts,
	}, nil
}

// NewNoop builds a Provider with no exporter of its own; it records nothing
// as long as no global provider has been installed (for example by New).
// It still satisfies the Telemetry interfaces, useful for tests
// and for local runs without a collector configured.
func NewNoop() *Provider {
	meter := otel.Meter(instrumentationName)
	insts, _ := newInstruments(meter)
	// otel.Tracer draws from whatever global TracerProvider is currently
	// set, which is the package's own no-op implementation until New's
	// SetTracerProvider call runs; once New has run in the same process,
	// spans from a NewNoop Provider go to New's exporter.
	return &Provider{tracer: otel.Tracer(instrumentationName), metrics: insts}
}

func newInstruments(meter metric.Meter) (instruments, error) {
	agentInvocations, err := meter.Int64Counter(
		"agent_invocations_total",
		metric.WithDescription("count of agent invocations by agent type and outcome"),
	)
	if err != nil {
		return instruments{}, err
	}
	agentDuration, err := meter.Float64Histogram(
		"agent_invocation_duration_seconds",
		metric.WithDescription("wall-clock duration of a single agent invocation"),
	)
	if err != nil {
		return instruments{}, err
	}
	storeSearches, err := meter.Int64Counter(
		"retrieval_store_searches_total",
		metric.WithDescription("count of retrieval store searches by store and outcome"),
	)
	if err != nil {
		return instruments{}, err
	}
	rateLimiterWaits, err := meter.Float64Histogram(
		"rate_limiter_wait_seconds",
		metric.WithDescription("time a task spent waiting to acquire a rate-limiter token, per §10.2"),
	)
	if err != nil {
		return instruments{}, err
	}
	synthesisConflict, err := meter.Int64Counter(
		"synthesis_conflicts_total",
		metric.WithDescription("count of turns whose synthesis emitted the conflicting-signals template"),
	)
	if err != nil {
		return instruments{}, err
	}
	return instruments{
		agentInvocations:  agentInvocations,
		agentDuration:     agentDuration,
		storeSearches:     storeSearches,
		rateLimiterWaits:  rateLimiterWaits,
		synthesisConflict: synthesisConflict,
	}, nil
}

// RecordAgentInvocation implements orchestrator.Telemetry: a span covering
// the invocation plus a counter and duration histogram labelled by agent
// type and success/failure.
func (p *Provider) RecordAgentInvocation(ctx context.Context, agentType registry.AgentType, duration time.Duration, err error) {
	_, span := p.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.type", string(agentType)),
	))
	outcome := "success"
	if err != nil {
		span.RecordError(err)
		outcome = "error"
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("agent.type", string(agentType)),
		attribute.String("outcome", outcome),
	)
	p.metrics.agentInvocations.Add(ctx, 1, attrs)
	p.metrics.agentDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSynthesisConflict implements orchestrator.Telemetry.
func (p *Provider) RecordSynthesisConflict(ctx context.Context, conflicted bool) {
	if !conflicted {
		return
	}
	p.metrics.synthesisConflict.Add(ctx, 1)
}

// RecordStoreSearch implements retrieval.Telemetry.
func (p *Provider) RecordStoreSearch(ctx context.Context, store retrieval.StoreID, fragments int, err error) {
	_, span := p.tracer.Start(ctx, "retrieval.store_search", trace.WithAttributes(
		attribute.String("store.id", string(store)),
		attribute.Int("fragments", fragments),
	))
	outcome := "success"
	if err != nil {
		span.RecordError(err)
		outcome = "error"
	}
	span.End()

	p.metrics.storeSearches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store.id", string(store)),
		attribute.String("outcome", outcome),
	))
}

// RecordRateLimiterWait implements executor.Telemetry.
func (p *Provider) RecordRateLimiterWait(ctx context.Context, waited time.Duration) {
	p.metrics.rateLimiterWaits.Record(ctx, waited.Seconds())
}

// OnThought implements orchestrator.StageObserver, letting a Provider be
// composed with (or substituted for) session.thoughtForwarder wherever a
// single observer should both drive the session's event stream and tag a
// trace span per stage transition.
func (p *Provider) OnThought(message, agentType string) {
	_, span := p.tracer.Start(context.Background(), "orchestrator.thought", trace.WithAttributes(
		attribute.String("message", message),
		attribute.String("agent.type", agentType),
	))
	span.End()
}

// Shutdown flushes and stops the trace exporter. Safe to call on a
// NewNoop-constructed Provider, which has no exporter to flush.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.traceProvider == nil {
		return nil
	}
	return p.traceProvider.Shutdown(ctx)
}
