package backlog

import "errors"

var (
	// Submission errors.
	ErrCapacityExceeded = errors.New("backlog: pending queue is at capacity")
	ErrRateLimited      = errors.New("backlog: submission rate limit exceeded")
	ErrShuttingDown     = errors.New("backlog: scheduler is shutting down")
	ErrInvalidOptions   = errors.New("backlog: invalid job options")
	ErrNilProcessor     = errors.New("backlog: nil processor")

	// Execution errors.
	ErrTimeoutExceeded = errors.New("backlog: job timeout exceeded")
	ErrPoolClosed      = errors.New("backlog: worker pool is not running")
	ErrPoolSaturated   = errors.New("backlog: worker pool has no free slot")

	// Lookup errors.
	ErrJobNotFound = errors.New("backlog: job not found")

	// Configuration errors.
	ErrInvalidConfig = errors.New("backlog: invalid configuration")
)
