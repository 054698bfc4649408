package middleware

import (
	"context"

	"github.com/xraph/backlog/job"
)

// Handler is the terminal function that runs the processor.
type Handler func(ctx context.Context) (any, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// attempt context, a snapshot of the job, and the next handler.
type Middleware func(ctx context.Context, j *job.Job, next Handler) (any, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (any, error) {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// Wrap returns a Handler that runs p for j through mw. A nil mw runs p
// directly.
func Wrap(mw Middleware, p job.Processor, j *job.Job) Handler {
	h := func(ctx context.Context) (any, error) {
		return p.Process(ctx, j.Payload, j.ID)
	}
	if mw == nil {
		return h
	}
	return func(ctx context.Context) (any, error) {
		return mw(ctx, j, h)
	}
}
