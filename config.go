package backlog

import (
	"fmt"
	"time"
)

// Config holds configuration for a Scheduler. It is supplied by the host
// process; the scheduler never reads it from the environment itself.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently.
	Concurrency int

	// JobTimeout is how long a single attempt may stay in processing
	// before it is failed with a timeout error.
	JobTimeout time.Duration

	// MaxQueueDepth is the maximum number of pending jobs. Submissions
	// beyond it are rejected with ErrCapacityExceeded.
	MaxQueueDepth int

	// ResultTTL is how long completed and failed jobs remain retrievable.
	ResultTTL time.Duration

	// CleanupInterval is how often expired results are reaped.
	CleanupInterval time.Duration

	// BaseRetryDelay is the unit of the default linear retry backoff:
	// retry n waits BaseRetryDelay * n.
	BaseRetryDelay time.Duration

	// DefaultProcessingEstimate is used for wait estimates before any
	// job has completed.
	DefaultProcessingEstimate time.Duration

	// AverageWindow bounds which completions feed the rolling average
	// processing time. Only the most recent 20 inside the window count.
	AverageWindow time.Duration

	// ShutdownTimeout is the grace period in-flight jobs get to finish
	// during shutdown.
	ShutdownTimeout time.Duration

	// SubmitRateLimit is the sustained number of submissions per second.
	// Zero disables rate limiting.
	SubmitRateLimit float64

	// SubmitBurst is the token-bucket burst for SubmitRateLimit.
	SubmitBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:               3,
		JobTimeout:                30 * time.Second,
		MaxQueueDepth:             100,
		ResultTTL:                 time.Hour,
		CleanupInterval:           5 * time.Minute,
		BaseRetryDelay:            time.Second,
		DefaultProcessingEstimate: 5 * time.Second,
		AverageWindow:             time.Hour,
		ShutdownTimeout:           30 * time.Second,
	}
}

// Validate reports whether the configuration can drive a scheduler.
func (c Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConfig, c.Concurrency)
	case c.JobTimeout <= 0:
		return fmt.Errorf("%w: job timeout must be positive, got %s", ErrInvalidConfig, c.JobTimeout)
	case c.MaxQueueDepth <= 0:
		return fmt.Errorf("%w: max queue depth must be positive, got %d", ErrInvalidConfig, c.MaxQueueDepth)
	case c.ResultTTL <= 0:
		return fmt.Errorf("%w: result ttl must be positive, got %s", ErrInvalidConfig, c.ResultTTL)
	case c.CleanupInterval <= 0:
		return fmt.Errorf("%w: cleanup interval must be positive, got %s", ErrInvalidConfig, c.CleanupInterval)
	case c.AverageWindow <= 0:
		return fmt.Errorf("%w: average window must be positive, got %s", ErrInvalidConfig, c.AverageWindow)
	case c.BaseRetryDelay < 0:
		return fmt.Errorf("%w: base retry delay must not be negative, got %s", ErrInvalidConfig, c.BaseRetryDelay)
	case c.ShutdownTimeout < 0:
		return fmt.Errorf("%w: shutdown timeout must not be negative, got %s", ErrInvalidConfig, c.ShutdownTimeout)
	case c.SubmitRateLimit < 0:
		return fmt.Errorf("%w: submit rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
