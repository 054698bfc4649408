package job

import (
	"context"

	"github.com/xraph/backlog/id"
)

// Processor performs the work for a job. It may be invoked more than once
// for the same job when attempts fail, so implementations must tolerate
// re-execution.
type Processor interface {
	Process(ctx context.Context, payload any, jobID id.JobID) (any, error)
}

// ProcessorFunc adapts an ordinary function to a Processor.
type ProcessorFunc func(ctx context.Context, payload any, jobID id.JobID) (any, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, payload any, jobID id.JobID) (any, error) {
	return f(ctx, payload, jobID)
}

// Outcome is the result of a single attempt: a value on success, or a
// classified error on failure. The scheduler decides retries by matching
// on Err.Kind rather than on the raw processor error.
type Outcome struct {
	Value any
	Err   *Error
}

// Succeeded returns a successful outcome.
func Succeeded(v any) Outcome { return Outcome{Value: v} }

// Failed returns a failed outcome.
func Failed(err *Error) Outcome { return Outcome{Err: err} }

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Err == nil }
