package ext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/backlog/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobSubmittedEntry struct {
	name string
	hook JobSubmitted
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register must not be called concurrently with the emit methods; the
// scheduler registers everything before Start.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobSubmitted []jobSubmittedEntry
	jobStarted   []jobStartedEntry
	jobCompleted []jobCompletedEntry
	jobFailed    []jobFailedEntry
	jobRetrying  []jobRetryingEntry
	shutdown     []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobSubmitted); ok {
		r.jobSubmitted = append(r.jobSubmitted, jobSubmittedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobSubmitted notifies all extensions that implement JobSubmitted.
func (r *Registry) EmitJobSubmitted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSubmitted {
		r.call("OnJobSubmitted", e.name, func() error { return e.hook.OnJobSubmitted(ctx, j) })
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		r.call("OnJobStarted", e.name, func() error { return e.hook.OnJobStarted(ctx, j) })
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.call("OnJobCompleted", e.name, func() error { return e.hook.OnJobCompleted(ctx, j, elapsed) })
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		r.call("OnJobFailed", e.name, func() error { return e.hook.OnJobFailed(ctx, j, jobErr) })
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextAttemptAt time.Time) {
	for _, e := range r.jobRetrying {
		r.call("OnJobRetrying", e.name, func() error { return e.hook.OnJobRetrying(ctx, j, attempt, nextAttemptAt) })
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.call("OnShutdown", e.name, func() error { return e.hook.OnShutdown(ctx) })
	}
}

// call runs a single hook. Errors and panics are logged and never
// propagated to the scheduler.
func (r *Registry) call(hook, extName string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logHookError(hook, extName, fmt.Errorf("panic: %v", p))
		}
	}()
	if err := fn(); err != nil {
		r.logHookError(hook, extName, err)
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
