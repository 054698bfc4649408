package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/backlog/job"
)

// Logging returns middleware that logs attempt start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (any, error) {
		logger.Debug("attempt started",
			slog.String("job_id", j.ID.String()),
			slog.Int("priority", j.Priority),
			slog.Int("attempt", j.RetryCount+1),
		)

		start := time.Now()
		v, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("attempt failed",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.RetryCount+1),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("attempt succeeded",
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.RetryCount+1),
				slog.Duration("elapsed", elapsed),
			)
		}
		return v, err
	}
}
