package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobSubmitted = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope name for scheduler metrics.
const meterName = "github.com/xraph/backlog/observability"

// MetricsExtension records system-wide lifecycle metrics. Register it as
// a scheduler extension to track submission rates, completions, failures
// by kind, retries and processing time.
type MetricsExtension struct {
	JobSubmitted   metric.Int64Counter
	JobStarted     metric.Int64Counter
	JobCompleted   metric.Int64Counter
	JobFailed      metric.Int64Counter
	JobRetried     metric.Int64Counter
	ProcessingTime metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the API hands back noop instruments.
	submitted, _ := meter.Int64Counter("backlog.job.submitted",
		metric.WithDescription("Jobs accepted into the pending queue"), metric.WithUnit("{job}"))
	started, _ := meter.Int64Counter("backlog.job.started",
		metric.WithDescription("Attempts handed to a worker"), metric.WithUnit("{attempt}"))
	completed, _ := meter.Int64Counter("backlog.job.completed",
		metric.WithDescription("Jobs that completed successfully"), metric.WithUnit("{job}"))
	failed, _ := meter.Int64Counter("backlog.job.failed",
		metric.WithDescription("Jobs that failed terminally"), metric.WithUnit("{job}"))
	retried, _ := meter.Int64Counter("backlog.job.retried",
		metric.WithDescription("Failed attempts scheduled for retry"), metric.WithUnit("{attempt}"))
	processing, _ := meter.Float64Histogram("backlog.job.processing_time",
		metric.WithDescription("Duration of the final attempt in seconds"), metric.WithUnit("s"))

	return &MetricsExtension{
		JobSubmitted:   submitted,
		JobStarted:     started,
		JobCompleted:   completed,
		JobFailed:      failed,
		JobRetried:     retried,
		ProcessingTime: processing,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, _ *job.Job) error {
	m.JobSubmitted.Add(ctx, 1)
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, _ *job.Job) error {
	m.JobStarted.Add(ctx, 1)
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, _ *job.Job, elapsed time.Duration) error {
	m.JobCompleted.Add(ctx, 1)
	m.ProcessingTime.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", "completed")))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	kind := string(job.KindProcessor)
	if j.Error != nil {
		kind = string(j.Error.Kind)
	}
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	m.ProcessingTime.Record(ctx, j.ProcessingTime.Seconds(), metric.WithAttributes(attribute.String("status", "failed")))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, _ *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1)
	return nil
}
