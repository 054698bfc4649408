package redis

// Redis key naming conventions for mirrored data.
// All keys are prefixed with "backlog:" to avoid collisions.

const keyPrefix = "backlog:"

// jobKey returns the key for a job status hash: backlog:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// Hash fields.
const (
	fieldState         = "state"
	fieldPriority      = "priority"
	fieldRetryCount    = "retry_count"
	fieldCreatedAt     = "created_at"
	fieldStartedAt     = "started_at"
	fieldCompletedAt   = "completed_at"
	fieldFailedAt      = "failed_at"
	fieldNextAttemptAt = "next_attempt_at"
	fieldProcessingMs  = "processing_time_ms"
	fieldResult        = "result"
	fieldErrorKind     = "error_kind"
	fieldErrorMessage  = "error_message"
	fieldErrorCode     = "error_code"
	fieldErrorAttempt  = "error_attempt"
	fieldUpdatedAt     = "updated_at"
)
