// Package middleware provides composable middleware around a processor
// attempt.
//
// A [Middleware] wraps the call into a [job.Processor]. Middleware are
// composed into a chain using [Chain] and applied to every attempt the
// scheduler runs. They are applied right-to-left: the first middleware in
// the slice is the outermost wrapper.
//
//	// logging → recover → processor
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs job ID, priority, attempt, duration and outcome
//   - [Recover] catches panics and converts them to [job.KindPanic] errors
//   - [Tracing] wraps each attempt in an OpenTelemetry span
//   - [Metrics] records per-attempt duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) (any, error) {
//	        // pre-processing
//	        v, err := next(ctx)
//	        // post-processing
//	        return v, err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting. The *job.Job handed to middleware is a snapshot;
// changes to it are not seen by the scheduler.
package middleware
