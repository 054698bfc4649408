package backlog

import "time"

// Option configures a Config.
type Option func(*Config) error

// NewConfig applies opts to DefaultConfig and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithConcurrency sets the maximum number of concurrent jobs.
func WithConcurrency(n int) Option {
	return func(c *Config) error {
		c.Concurrency = n
		return nil
	}
}

// WithJobTimeout sets the per-attempt processing timeout.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.JobTimeout = d
		return nil
	}
}

// WithMaxQueueDepth sets the pending queue capacity.
func WithMaxQueueDepth(n int) Option {
	return func(c *Config) error {
		c.MaxQueueDepth = n
		return nil
	}
}

// WithResultTTL sets how long terminal results remain retrievable.
func WithResultTTL(d time.Duration) Option {
	return func(c *Config) error {
		c.ResultTTL = d
		return nil
	}
}

// WithCleanupInterval sets how often expired results are reaped.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.CleanupInterval = d
		return nil
	}
}

// WithBaseRetryDelay sets the unit of the default linear retry backoff.
func WithBaseRetryDelay(d time.Duration) Option {
	return func(c *Config) error {
		c.BaseRetryDelay = d
		return nil
	}
}

// WithDefaultProcessingEstimate sets the processing time assumed for wait
// estimates before any job has completed.
func WithDefaultProcessingEstimate(d time.Duration) Option {
	return func(c *Config) error {
		c.DefaultProcessingEstimate = d
		return nil
	}
}

// WithAverageWindow bounds which completions feed the processing time
// average used for wait estimates.
func WithAverageWindow(d time.Duration) Option {
	return func(c *Config) error {
		c.AverageWindow = d
		return nil
	}
}

// WithShutdownTimeout sets the grace period for in-flight jobs on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = d
		return nil
	}
}

// WithSubmitRateLimit enables token-bucket limiting of submissions.
func WithSubmitRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) error {
		c.SubmitRateLimit = perSecond
		c.SubmitBurst = burst
		return nil
	}
}
