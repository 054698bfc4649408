// Package job defines the job entity, its state machine, the processor
// contract, error taxonomy, status views, and the result store interface.
//
// # Job Entity
//
// A [Job] is a unit of work with an opaque payload. It progresses through:
//
//	queued → processing → completed
//	queued → processing → retrying → queued → ...
//	queued → processing → failed
//
// Fields of note:
//   - Priority: higher values are dispatched first; ties keep submission order
//   - MaxRetries / RetryCount: the retry budget and how much of it was used
//   - ExpiresAt: set once the job is terminal; after it the job is gone
//
// # Processors
//
// A [Processor] does the actual work. It may run more than once for the
// same job, so it must be safe to repeat:
//
//	resize := job.ProcessorFunc(func(ctx context.Context, payload any, _ id.JobID) (any, error) {
//	    img := payload.(Upload)
//	    return optimize(ctx, img)
//	})
//
// Processors receive a context that is cancelled when the attempt times out
// or the scheduler shuts down.
package job
