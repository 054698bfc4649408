// Package backlog provides a bounded, in-process job scheduler for slow,
// CPU-bound work such as image optimization. It keeps that work off the
// request path: callers submit a job, receive an ID immediately, and poll
// for the outcome or subscribe to lifecycle events.
//
// Backlog is a library. The scheduler is an explicit instance owned by its
// host, built from a [Config] and functional options.
//
// # Quick Start
//
//	cfg, err := backlog.NewConfig(
//	    backlog.WithConcurrency(4),
//	    backlog.WithJobTimeout(30*time.Second),
//	    backlog.WithMaxQueueDepth(100),
//	)
//	if err != nil { ... }
//	s, err := scheduler.New(cfg, scheduler.WithLogger(logger))
//	if err != nil { ... }
//	s.Start(ctx)
//	defer s.Shutdown(ctx)
//
//	jobID, err := s.Submit(optimizer, upload, job.WithPriority(5))
//	view := s.Status(jobID)
//
// # Guarantees
//
// At most Concurrency processors run at once. The pending queue rejects
// submissions beyond MaxQueueDepth with [ErrCapacityExceeded]. Failed
// attempts are retried with backoff up to the job's MaxRetries, so a
// processor may run more than once for the same job (at-least-once).
// Terminal results are retained for ResultTTL and then reaped.
//
// All job IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package backlog
