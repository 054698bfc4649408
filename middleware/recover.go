package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/backlog/job"
)

// Recover returns middleware that recovers from panics in the chain.
// A panic becomes a *job.Error of kind panic carrying the stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (v any, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("processor panicked",
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				v, retErr = nil, job.PanicError(r, []byte(stack))
			}
		}()
		return next(ctx)
	}
}
