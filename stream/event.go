// Package stream provides a real-time event broker for backlog lifecycle
// events. It bridges the ext.Extension system to connected clients (the
// daemon's SSE endpoint) via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobSubmitted EventType = "job.submitted"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobRetrying  EventType = "job.retrying"

	EventShutdown EventType = "scheduler.shutdown"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity topic this event was published on.
	Topic string `json:"topic,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID         string `json:"job_id"`
	Priority      int    `json:"priority"`
	RetryCount    int    `json:"retry_count"`
	ElapsedMs     int64  `json:"elapsed_ms,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	NextAttemptAt string `json:"next_attempt_at,omitempty"`
}
