package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/backlog/job"
)

// tracerName is the instrumentation scope name for backlog tracing.
const tracerName = "github.com/xraph/backlog"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used.
//
// Span attributes include: backlog.job.id, backlog.job.priority,
// backlog.retry_count. On error, the span status is set to codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		ctx, span := tracer.Start(ctx, "backlog.job.process",
			trace.WithAttributes(
				attribute.String("backlog.job.id", j.ID.String()),
				attribute.Int("backlog.job.priority", j.Priority),
				attribute.Int("backlog.retry_count", j.RetryCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		v, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return v, err
	}
}
