package ext

import (
	"context"
	"time"

	"github.com/xraph/backlog/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobSubmitted is called after a job is accepted into the pending queue.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a job is handed to a worker.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when an attempt fails and the job will be retried
// after a backoff delay.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextAttemptAt time.Time) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called once the scheduler has stopped.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
