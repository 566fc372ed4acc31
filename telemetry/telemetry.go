// Package telemetry is the ambient logging/metrics/tracing surface, built
// on goa.design/clue/log plus OpenTelemetry, grounded directly on the
// teacher's runtime/agent/telemetry/clue.go (ClueLogger/ClueMetrics/
// ClueTracer wrapping the same two libraries the same way).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// Logger is a thin structured-logging facade over goa.design/clue/log.
type Logger struct{}

// NewLogger returns a Logger. clue/log reads its destination/format from
// the context via log.Context, so construction takes no arguments; callers
// wrap their base context once at startup with log.Context(ctx, ...).
func NewLogger() Logger { return Logger{} }

func (Logger) Debug(ctx context.Context, msg string, kv ...log.KV) {
	log.Debug(ctx, msg, fields(kv)...)
}

func (Logger) Info(ctx context.Context, msg string, kv ...log.KV) {
	log.Info(ctx, msg, fields(kv)...)
}

func (Logger) Warn(ctx context.Context, msg string, kv ...log.KV) {
	log.Warn(ctx, msg, fields(kv)...)
}

func (Logger) Error(ctx context.Context, msg string, err error, kv ...log.KV) {
	all := append([]log.KV{{K: "error", V: err}}, kv...)
	log.Error(ctx, msg, fields(all)...)
}

func fields(kv []log.KV) []log.Fielder {
	out := make([]log.Fielder, len(kv))
	for i, f := range kv {
		out[i] = f
	}
	return out
}

// Metrics wraps an OpenTelemetry meter scoped to this module.
type Metrics struct {
	meter metric.Meter
}

// NewMetrics returns a Metrics using the global otel MeterProvider.
func NewMetrics() Metrics {
	return Metrics{meter: otel.Meter("github.com/flowcore-dev/flowcore")}
}

// Meter exposes the underlying metric.Meter for instrument creation
// (counters for events emitted, histograms for activation latency, etc.).
func (m Metrics) Meter() metric.Meter { return m.meter }

// Tracer wraps an OpenTelemetry tracer scoped to this module.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer using the global otel TracerProvider.
func NewTracer() Tracer {
	return Tracer{tracer: otel.Tracer("github.com/flowcore-dev/flowcore")}
}

// Start begins a span named name, mirroring the teacher's ClueTracer.Start
// pass-through.
func (t Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}
