package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" database/sql driver

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Archive)(nil)
	_ ext.JobCompleted = (*Archive)(nil)
	_ ext.JobFailed    = (*Archive)(nil)
)

// Option configures the Archive.
type Option func(*Archive)

// WithLogger sets the logger for the archive.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithClock overrides the time source used for archived_at.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		a.now = now
	}
}

// Archive writes terminal jobs to SQLite. The caller owns the *sql.DB
// lifecycle; Archive never closes it.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Archive on db. db must use the "sqlite" driver.
func New(db *sql.DB, opts ...Option) *Archive {
	a := &Archive{
		db:     db,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DB returns the underlying database handle.
func (a *Archive) DB() *sql.DB { return a.db }

// Migrate creates the archive schema.
func (a *Archive) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("backlog/sqlite: migrate: %w", err)
		}
	}
	return nil
}

// Ping verifies the database connection is alive.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Name implements ext.Extension.
func (a *Archive) Name() string { return "sqlite-archive" }

// OnJobCompleted implements ext.JobCompleted.
func (a *Archive) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	return a.Put(ctx, j)
}

// OnJobFailed implements ext.JobFailed.
func (a *Archive) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	return a.Put(ctx, j)
}

const upsertJobSQL = `
INSERT INTO backlog_jobs (
	id, state, priority, max_retries, retry_count, result_json,
	error_kind, error_message, error_code, error_stack, processing_time_ms,
	created_at, started_at, completed_at, failed_at, archived_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	state              = excluded.state,
	retry_count        = excluded.retry_count,
	result_json        = excluded.result_json,
	error_kind         = excluded.error_kind,
	error_message      = excluded.error_message,
	error_code         = excluded.error_code,
	error_stack        = excluded.error_stack,
	processing_time_ms = excluded.processing_time_ms,
	started_at         = excluded.started_at,
	completed_at       = excluded.completed_at,
	failed_at          = excluded.failed_at,
	archived_at        = excluded.archived_at`

// Put upserts j into the archive.
func (a *Archive) Put(ctx context.Context, j *job.Job) error {
	var resultJSON sql.NullString
	if j.Result != nil {
		raw, err := json.Marshal(j.Result)
		if err != nil {
			a.logger.Warn("archive: result not encodable",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			resultJSON = sql.NullString{String: string(raw), Valid: true}
		}
	}

	var errKind, errMsg, errCode, errStack sql.NullString
	if j.Error != nil {
		errKind = nullString(string(j.Error.Kind))
		errMsg = nullString(j.Error.Message)
		errCode = nullString(j.Error.Code)
		errStack = nullString(j.Error.Stack)
	}

	_, err := a.db.ExecContext(ctx, upsertJobSQL,
		j.ID.String(),
		string(j.State),
		j.Priority,
		j.MaxRetries,
		j.RetryCount,
		resultJSON,
		errKind, errMsg, errCode, errStack,
		j.ProcessingTime.Milliseconds(),
		formatTime(j.CreatedAt),
		formatTimePtr(j.StartedAt),
		formatTimePtr(j.CompletedAt),
		formatTimePtr(j.FailedAt),
		formatTime(a.now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("backlog/sqlite: archive job: %w", err)
	}
	return nil
}

const selectJobSQL = `
SELECT id, state, priority, max_retries, retry_count, result_json,
	error_kind, error_message, error_code, error_stack, processing_time_ms,
	created_at, started_at, completed_at, failed_at
FROM backlog_jobs WHERE id = ?`

// Get returns the archived job. Result holds the stored JSON as a
// json.RawMessage. It fails with backlog.ErrJobNotFound for unknown IDs.
func (a *Archive) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var (
		rawID, state                       string
		priority, maxRetries, retryCount   int
		resultJSON                         sql.NullString
		errKind, errMsg, errCode, errStack sql.NullString
		processingMs                       int64
		createdAt                          string
		startedAt, completedAt, failedAt   sql.NullString
	)
	err := a.db.QueryRowContext(ctx, selectJobSQL, jobID.String()).Scan(
		&rawID, &state, &priority, &maxRetries, &retryCount, &resultJSON,
		&errKind, &errMsg, &errCode, &errStack, &processingMs,
		&createdAt, &startedAt, &completedAt, &failedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backlog.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("backlog/sqlite: get job: %w", err)
	}

	parsedID, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("backlog/sqlite: parse job id: %w", err)
	}

	j := &job.Job{
		ID:             parsedID,
		State:          job.State(state),
		Priority:       priority,
		MaxRetries:     maxRetries,
		RetryCount:     retryCount,
		ProcessingTime: time.Duration(processingMs) * time.Millisecond,
		StartedAt:      parseTimePtr(startedAt),
		CompletedAt:    parseTimePtr(completedAt),
		FailedAt:       parseTimePtr(failedAt),
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // written by Put
	if resultJSON.Valid {
		j.Result = json.RawMessage(resultJSON.String)
	}
	if errKind.Valid {
		j.Error = &job.Error{
			Kind:    job.ErrorKind(errKind.String),
			Message: errMsg.String,
			Code:    errCode.String,
			Stack:   errStack.String,
			Attempt: retryCount + 1,
		}
	}
	return j, nil
}

// Count returns the number of archived jobs in state. An empty state
// counts every row.
func (a *Archive) Count(ctx context.Context, state job.State) (int, error) {
	var (
		n   int
		err error
	)
	if state == "" {
		err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backlog_jobs`).Scan(&n)
	} else {
		err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backlog_jobs WHERE state = ?`, string(state)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("backlog/sqlite: count jobs: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
