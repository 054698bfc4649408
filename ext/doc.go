// Package ext defines the extension system for backlog.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, mirroring status to Redis, archiving results, or
// streaming updates to clients. Each lifecycle hook is a separate
// interface so extensions opt in only to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobSubmitted] — job was accepted into the pending queue
//   - [JobStarted] — job was handed to a worker
//   - [JobCompleted] — job finished successfully
//   - [JobFailed] — job failed with no retries remaining
//   - [JobRetrying] — an attempt failed and the job will run again
//
// # Other Hooks
//
//   - [Shutdown] — the scheduler has stopped
//
// The scheduler emits every event from a single goroutine, so the hooks
// for one job are observed in lifecycle order. Hooks receive a snapshot
// of the job. A hook that returns an error or panics is logged and
// skipped; scheduling is never affected.
package ext
