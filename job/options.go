package job

import (
	"fmt"

	"github.com/xraph/backlog"
)

// Options configures per-job dispatch behaviour.
type Options struct {
	// Priority determines dispatch ordering. Higher values go first.
	Priority int

	// MaxRetries is how many times a failed attempt is retried before
	// the job is marked failed.
	MaxRetries int
}

// DefaultOptions returns priority 0 with no retries.
func DefaultOptions() Options {
	return Options{}
}

// Validate checks the options at submission time.
func (o Options) Validate() error {
	if o.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", backlog.ErrInvalidOptions, o.MaxRetries)
	}
	return nil
}

// Option is a functional option applied on submission.
type Option func(*Options)

// WithPriority sets the job priority. Higher values are dispatched first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// Apply builds Options from DefaultOptions and opts, then validates them.
func Apply(opts ...Option) (Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}
