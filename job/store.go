package job

import (
	"context"
	"time"

	"github.com/xraph/backlog/id"
)

// ResultStore retains terminal (completed or failed) jobs until they
// expire. Implementations must be safe for concurrent use.
type ResultStore interface {
	// PutResult stores a copy of a terminal job, replacing any previous
	// record with the same ID.
	PutResult(ctx context.Context, j *Job) error

	// GetResult returns a terminal job. It returns backlog.ErrJobNotFound
	// for unknown IDs and for records whose ExpiresAt is not after now.
	GetResult(ctx context.Context, jobID id.JobID, now time.Time) (*Job, error)

	// SweepResults deletes every record expired at now and returns how
	// many were removed.
	SweepResults(ctx context.Context, now time.Time) (int, error)

	// CountResults returns the number of retained records in state.
	CountResults(ctx context.Context, state State) (int, error)
}
