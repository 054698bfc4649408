package job

import (
	"time"

	"github.com/xraph/backlog/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting in the pending queue.
	StateQueued State = "queued"
	// StateProcessing means a worker is currently running the job.
	StateProcessing State = "processing"
	// StateRetrying means the last attempt failed and the job is waiting
	// out its backoff before being queued again.
	StateRetrying State = "retrying"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
)

// Terminal reports whether s is completed or failed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job represents a unit of work tracked by the scheduler.
type Job struct {
	ID             id.JobID      `json:"id"`
	Payload        any           `json:"-"`
	Priority       int           `json:"priority"`
	MaxRetries     int           `json:"max_retries"`
	RetryCount     int           `json:"retry_count"`
	State          State         `json:"state"`
	Result         any           `json:"result,omitempty"`
	Error          *Error        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	FailedAt       *time.Time    `json:"failed_at,omitempty"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Clone returns a shallow copy whose timestamp pointers are not shared
// with j. Payload and Result are copied by reference.
func (j *Job) Clone() *Job {
	cp := *j
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.FailedAt = cloneTime(j.FailedAt)
	cp.ExpiresAt = cloneTime(j.ExpiresAt)
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// Expired reports whether the job's retention has passed at now.
func (j *Job) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && !now.Before(*j.ExpiresAt)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
