package scheduler

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/backlog/backoff"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/job"
	mw "github.com/xraph/backlog/middleware"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithExtension registers an extension with the scheduler. Extensions
// are notified in registration order.
func WithExtension(e ext.Extension) Option {
	return func(s *Scheduler) {
		s.exts = append(s.exts, e)
	}
}

// WithMiddleware adds middleware around every processor attempt.
func WithMiddleware(m mw.Middleware) Option {
	return func(s *Scheduler) {
		s.mws = append(s.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. If not set, retry n waits
// BaseRetryDelay * n.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *Scheduler) {
		s.bo = b
	}
}

// WithResultStore sets where completed and failed jobs are retained
// until they expire. If not set, an in-memory store is used.
func WithResultStore(rs job.ResultStore) Option {
	return func(s *Scheduler) {
		s.results = rs
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) {
		s.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for both the metrics
// middleware and the observability extension. If not set, the global
// otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Scheduler) {
		s.meterProvider = mp
	}
}
