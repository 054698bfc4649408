// Package scheduler wires the backlog subsystems together and provides
// the operations callers use: Submit, Status, Stats and Shutdown.
//
// It sits above every subsystem package (job, queue, worker, ext,
// middleware, store) and below the application layer, the same way
// the root backlog package holds only configuration and errors.
//
// # Building a Scheduler
//
//	cfg, err := backlog.NewConfig(
//	    backlog.WithConcurrency(4),
//	    backlog.WithJobTimeout(10*time.Second),
//	)
//
//	s, err := scheduler.New(cfg,
//	    scheduler.WithLogger(logger),
//	    scheduler.WithExtension(broker),
//	    scheduler.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	)
//
//	if err := s.Start(ctx); err != nil { ... }
//	defer s.Shutdown(ctx)
//
// # Submitting Work
//
//	jobID, err := s.Submit(optimizer, upload, job.WithPriority(5), job.WithMaxRetries(2))
//	switch {
//	case errors.Is(err, backlog.ErrCapacityExceeded):
//	    // shed load
//	}
//
//	view := s.Status(jobID) // queued, processing, retrying, completed, failed or not_found
//
// # Model
//
// All scheduling state lives behind one mutex. Completions, timeouts and
// retry backoffs are signalled to a single coordinator goroutine which
// applies the transition and refills free worker slots. The resulting
// lifecycle events go to a notifier goroutine that calls extensions in
// order, each hook with a bounded context, so a slow extension delays
// only later events and never dispatch. Processor bodies run on a fixed
// worker pool of Concurrency goroutines. A job that exceeds JobTimeout has
// its context cancelled and is failed (or retried) with a timeout error;
// if the processor keeps running, its eventual result is discarded.
//
// # Options
//
//   - [WithLogger] — structured logger (default slog.Default())
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to every attempt
//   - [WithBackoff] — retry delay strategy (default linear on BaseRetryDelay)
//   - [WithResultStore] — where terminal jobs are retained (default in-memory)
//   - [WithTracerProvider] — OpenTelemetry tracer provider
//   - [WithMeterProvider] — OpenTelemetry meter provider
package scheduler
