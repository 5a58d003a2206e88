// Package telemetry provides spans around one query's lifecycle (submit ->
// stream -> result) for log correlation, mirroring the teacher's
// internal/agent/loop_tracing.go span-per-phase structure but against the
// stock OTel SDK instead of a bespoke Postgres span collector — this repo
// has no trace-storage backend, so spans exist purely for trace/span IDs
// threaded into slog output.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nextlevelbuilder/clawbridge"

// Provider wraps an SDK TracerProvider configured with no exporter: spans
// still carry real trace/span IDs (useful as slog correlation fields) but
// are dropped on End rather than shipped anywhere, since no collector
// endpoint is configured anywhere in this system.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a process-wide TracerProvider and registers it as the
// global provider via otel.SetTracerProvider.
func NewProvider() *Provider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}
}

// Shutdown flushes and releases the provider's resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Tracer returns the package tracer used throughout this repo.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartQuery opens the root span for one User Client Submit call, named for
// the directory being queried.
func StartQuery(ctx context.Context, directory string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "query", trace.WithAttributes(
		attribute.String("directory", directory),
	))
}

// StartStream opens a child span covering the backend's streamed response,
// from the first event to the terminal result message.
func StartStream(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "stream", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
}

// RecordResult annotates span with the final query outcome: cost, turn
// count, and error status (if any), then ends it. Mirrors the teacher's
// emitAgentSpan finishing a span with its RunResult.
func RecordResult(span trace.Span, costUSD float64, numTurns int, err error) {
	span.SetAttributes(
		attribute.Float64("cost_usd", costUSD),
		attribute.Int("num_turns", numTurns),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
