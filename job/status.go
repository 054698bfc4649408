package job

import (
	"encoding/json"
	"time"
)

// StateNotFound is reported for IDs that were never submitted or whose
// results have expired. It is a view state, never a job state.
const StateNotFound State = "not_found"

// StatusView is the polled answer to "what happened to my job".
// Which fields are set depends on State:
//   - processing: StartedAt, RetryCount
//   - completed: Result, CompletedAt, ProcessingTime, RetryCount
//   - failed: Error, FailedAt, ProcessingTime, RetryCount
//   - retrying: RetryCount, NextAttemptAt
//   - queued: Position (1-based), EstimatedWait
//   - not_found: nothing else
type StatusView struct {
	State          State
	StartedAt      *time.Time
	CompletedAt    *time.Time
	FailedAt       *time.Time
	NextAttemptAt  *time.Time
	Result         any
	Error          *Error
	RetryCount     int
	Position       int
	ProcessingTime time.Duration
	EstimatedWait  time.Duration
}

// NotFound returns the view for an unknown or expired ID.
func NotFound() StatusView { return StatusView{State: StateNotFound} }

// Found reports whether the view describes a live job.
func (v StatusView) Found() bool { return v.State != StateNotFound && v.State != "" }

// MarshalJSON renders durations as milliseconds, using the snake_case keys
// the HTTP layer serves.
func (v StatusView) MarshalJSON() ([]byte, error) {
	out := struct {
		Status           State      `json:"status"`
		StartedAt        *time.Time `json:"started_at,omitempty"`
		CompletedAt      *time.Time `json:"completed_at,omitempty"`
		FailedAt         *time.Time `json:"failed_at,omitempty"`
		NextAttemptAt    *time.Time `json:"next_attempt_at,omitempty"`
		Result           any        `json:"result,omitempty"`
		Error            *Error     `json:"error,omitempty"`
		RetryCount       int        `json:"retry_count,omitempty"`
		Position         int        `json:"position,omitempty"`
		ProcessingTimeMs int64      `json:"processing_time_ms,omitempty"`
		EstimatedWaitMs  *int64     `json:"estimated_wait_ms,omitempty"`
	}{
		Status:           v.State,
		StartedAt:        v.StartedAt,
		CompletedAt:      v.CompletedAt,
		FailedAt:         v.FailedAt,
		NextAttemptAt:    v.NextAttemptAt,
		Result:           v.Result,
		Error:            v.Error,
		RetryCount:       v.RetryCount,
		Position:         v.Position,
		ProcessingTimeMs: v.ProcessingTime.Milliseconds(),
	}
	if v.State == StateQueued {
		ms := v.EstimatedWait.Milliseconds()
		out.EstimatedWaitMs = &ms
	}
	return json.Marshal(out)
}
