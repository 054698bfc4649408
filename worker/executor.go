// Package worker provides the attempt execution engine: an Executor that
// invokes a processor through middleware, and a Pool of a fixed number
// of goroutines that run attempts handed to it by the scheduler.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/middleware"
)

// Task is a single attempt handed to the pool.
type Task struct {
	// Job is a snapshot of the job at dispatch time.
	Job *job.Job

	// Processor runs the work.
	Processor job.Processor

	// Attempt identifies this dispatch of the job. Results carry it back
	// so the scheduler can discard results of superseded attempts.
	Attempt uint64
}

// Result is what the pool reports for a finished attempt.
type Result struct {
	Task    Task
	Outcome job.Outcome

	StartedAt  time.Time
	FinishedAt time.Time

	// Abandoned is set when the attempt context was cancelled before the
	// processor returned. Outcome is empty in that case.
	Abandoned bool
}

// Elapsed returns the wall-clock duration of the attempt.
func (r Result) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Executor runs a single attempt through middleware and the processor.
type Executor struct {
	mw     middleware.Middleware
	logger *slog.Logger
}

// NewExecutor creates an Executor. Panics in the processor are always
// recovered; mws wrap outside that recovery.
func NewExecutor(logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	chain := make([]middleware.Middleware, 0, len(mws)+1)
	chain = append(chain, mws...)
	chain = append(chain, middleware.Recover(logger))
	return &Executor{
		mw:     middleware.Chain(chain...),
		logger: logger,
	}
}

// Execute runs t and waits until the processor returns or ctx is done.
// The processor runs on its own goroutine so a processor that ignores
// cancellation does not hold the caller; its late result is discarded.
func (e *Executor) Execute(ctx context.Context, t Task) Result {
	res := Result{Task: t, StartedAt: time.Now()}

	if ctx.Err() != nil {
		res.FinishedAt = res.StartedAt
		res.Abandoned = true
		return res
	}

	done := make(chan returned, 1)
	h := middleware.Wrap(e.mw, t.Processor, t.Job)
	go func() {
		v, err := h(ctx)
		done <- returned{v, err}
	}()

	select {
	case r := <-done:
		res.FinishedAt = time.Now()
		if r.err != nil {
			res.Outcome = job.Failed(job.NewError(r.err))
		} else {
			res.Outcome = job.Succeeded(r.v)
		}
	case <-ctx.Done():
		res.FinishedAt = time.Now()
		res.Abandoned = true
		go e.discardLate(t, done)
	}
	return res
}

type returned struct {
	v   any
	err error
}

func (e *Executor) discardLate(t Task, done <-chan returned) {
	<-done
	e.logger.Debug("discarded late processor result",
		slog.String("job_id", t.Job.ID.String()),
		slog.Int("retry_count", t.Job.RetryCount),
	)
}
