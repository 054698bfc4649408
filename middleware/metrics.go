package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/backlog/job"
)

// meterName is the instrumentation scope name for backlog metrics.
const meterName = "github.com/xraph/backlog"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - backlog.attempt.duration (Float64Histogram): attempt time in seconds
//   - backlog.attempt.executions (Int64Counter): total attempts
//
// Both carry a status attribute: "ok", "error" or "panic".
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"backlog.attempt.duration",
		metric.WithDescription("Duration of processor attempts in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"backlog.attempt.executions",
		metric.WithDescription("Total number of processor attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		start := time.Now()
		v, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("status", attemptStatus(err)),
			attribute.Int("priority", j.Priority),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)
		return v, err
	}
}

func attemptStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var je *job.Error
	if errors.As(err, &je) && je.Kind == job.KindPanic {
		return "panic"
	}
	return "error"
}
