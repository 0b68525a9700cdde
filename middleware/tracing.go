package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HeltonFraga01/cortexx-sub006/job"
)

// tracerName is the instrumentation scope name for cortexx tracing.
const tracerName = "github.com/HeltonFraga01/cortexx-sub006"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: cortexx.job.id, cortexx.job.name, cortexx.queue,
// cortexx.attempts, cortexx.tenant_id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "cortexx.job.execute",
			trace.WithAttributes(
				attribute.String("cortexx.job.id", j.ID.String()),
				attribute.String("cortexx.job.name", j.Name),
				attribute.String("cortexx.queue", j.Queue),
				attribute.Int("cortexx.attempts", j.Attempts),
				attribute.String("cortexx.tenant_id", j.TenantID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
