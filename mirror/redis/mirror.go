package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Mirror)(nil)
	_ ext.JobSubmitted = (*Mirror)(nil)
	_ ext.JobStarted   = (*Mirror)(nil)
	_ ext.JobCompleted = (*Mirror)(nil)
	_ ext.JobFailed    = (*Mirror)(nil)
	_ ext.JobRetrying  = (*Mirror)(nil)
)

// Option configures the Mirror.
type Option func(*Mirror)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// Mirror writes job status to Redis on every lifecycle transition.
type Mirror struct {
	client goredis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Mirror whose keys expire ttl after their last write.
// The caller owns the Redis client lifecycle.
func New(client goredis.Cmdable, ttl time.Duration, opts ...Option) *Mirror {
	m := &Mirror{client: client, ttl: ttl, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Client returns the underlying Redis client.
func (m *Mirror) Client() goredis.Cmdable { return m.client }

// Ping verifies the Redis connection is alive.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Name implements ext.Extension.
func (m *Mirror) Name() string { return "redis-mirror" }

// OnJobSubmitted implements ext.JobSubmitted.
func (m *Mirror) OnJobSubmitted(ctx context.Context, j *job.Job) error {
	return m.write(ctx, j, map[string]any{
		fieldState:      string(job.StateQueued),
		fieldPriority:   strconv.Itoa(j.Priority),
		fieldRetryCount: strconv.Itoa(j.RetryCount),
		fieldCreatedAt:  formatTime(j.CreatedAt),
	})
}

// OnJobStarted implements ext.JobStarted.
func (m *Mirror) OnJobStarted(ctx context.Context, j *job.Job) error {
	fields := map[string]any{
		fieldState:      string(job.StateProcessing),
		fieldRetryCount: strconv.Itoa(j.RetryCount),
	}
	if j.StartedAt != nil {
		fields[fieldStartedAt] = formatTime(*j.StartedAt)
	}
	return m.write(ctx, j, fields, fieldNextAttemptAt)
}

// OnJobRetrying implements ext.JobRetrying.
func (m *Mirror) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextAttemptAt time.Time) error {
	fields := map[string]any{
		fieldState:         string(job.StateRetrying),
		fieldRetryCount:    strconv.Itoa(attempt),
		fieldNextAttemptAt: formatTime(nextAttemptAt),
	}
	addError(fields, j.Error)
	return m.write(ctx, j, fields)
}

// OnJobCompleted implements ext.JobCompleted.
func (m *Mirror) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	fields := map[string]any{
		fieldState:        string(job.StateCompleted),
		fieldRetryCount:   strconv.Itoa(j.RetryCount),
		fieldProcessingMs: strconv.FormatInt(elapsed.Milliseconds(), 10),
	}
	if j.CompletedAt != nil {
		fields[fieldCompletedAt] = formatTime(*j.CompletedAt)
	}
	if j.Result != nil {
		raw, err := json.Marshal(j.Result)
		if err != nil {
			m.logger.Warn("mirror: result not encodable",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			fields[fieldResult] = string(raw)
		}
	}
	return m.write(ctx, j, fields, fieldNextAttemptAt, fieldErrorKind, fieldErrorMessage, fieldErrorCode, fieldErrorAttempt)
}

// OnJobFailed implements ext.JobFailed.
func (m *Mirror) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	fields := map[string]any{
		fieldState:        string(job.StateFailed),
		fieldRetryCount:   strconv.Itoa(j.RetryCount),
		fieldProcessingMs: strconv.FormatInt(j.ProcessingTime.Milliseconds(), 10),
	}
	if j.FailedAt != nil {
		fields[fieldFailedAt] = formatTime(*j.FailedAt)
	}
	addError(fields, j.Error)
	return m.write(ctx, j, fields, fieldNextAttemptAt)
}

// Status reads the mirrored view of jobID. Keys that were never written
// or have expired yield a not_found view and no error.
func (m *Mirror) Status(ctx context.Context, jobID id.JobID) (job.StatusView, error) {
	vals, err := m.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return job.StatusView{}, fmt.Errorf("backlog/redis: get status: %w", err)
	}
	if len(vals) == 0 {
		return job.NotFound(), nil
	}
	return mapToView(vals), nil
}

func (m *Mirror) write(ctx context.Context, j *job.Job, fields map[string]any, drop ...string) error {
	key := jobKey(j.ID.String())
	fields[fieldUpdatedAt] = formatTime(time.Now())

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if len(drop) > 0 {
		pipe.HDel(ctx, key, drop...)
	}
	pipe.Expire(ctx, key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("backlog/redis: mirror %s: %w", fields[fieldState], err)
	}
	return nil
}

func addError(fields map[string]any, e *job.Error) {
	if e == nil {
		return
	}
	fields[fieldErrorKind] = string(e.Kind)
	fields[fieldErrorMessage] = e.Message
	fields[fieldErrorCode] = e.Code
	fields[fieldErrorAttempt] = strconv.Itoa(e.Attempt)
}

func mapToView(m map[string]string) job.StatusView {
	retryCount, _ := strconv.Atoi(m[fieldRetryCount])                 //nolint:errcheck // best-effort parse from trusted Redis data
	processingMs, _ := strconv.ParseInt(m[fieldProcessingMs], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	v := job.StatusView{
		State:          job.State(m[fieldState]),
		RetryCount:     retryCount,
		ProcessingTime: time.Duration(processingMs) * time.Millisecond,
		StartedAt:      parseTime(m[fieldStartedAt]),
		CompletedAt:    parseTime(m[fieldCompletedAt]),
		FailedAt:       parseTime(m[fieldFailedAt]),
		NextAttemptAt:  parseTime(m[fieldNextAttemptAt]),
	}
	if raw, ok := m[fieldResult]; ok {
		v.Result = json.RawMessage(raw)
	}
	if kind, ok := m[fieldErrorKind]; ok {
		attempt, _ := strconv.Atoi(m[fieldErrorAttempt]) //nolint:errcheck // best-effort parse from trusted Redis data
		v.Error = &job.Error{
			Kind:    job.ErrorKind(kind),
			Message: m[fieldErrorMessage],
			Code:    m[fieldErrorCode],
			Attempt: attempt,
		}
	}
	return v
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
