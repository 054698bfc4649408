package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Ensure Store implements job.ResultStore at compile time.
var _ job.ResultStore = (*Store)(nil)

// Store is an in-memory job.ResultStore. Safe for concurrent access.
type Store struct {
	mu      sync.RWMutex
	results map[string]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		results: make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Ping / Close
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close drops every retained record.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = make(map[string]*job.Job)
	return nil
}

// ──────────────────────────────────────────────────
// Result Store
// ──────────────────────────────────────────────────

// PutResult stores a copy of a terminal job.
func (m *Store) PutResult(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[j.ID.String()] = j.Clone()
	return nil
}

// GetResult returns a copy of the stored job unless it is unknown or has
// expired at now.
func (m *Store) GetResult(_ context.Context, jobID id.JobID, now time.Time) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.results[jobID.String()]
	if !ok || j.Expired(now) {
		return nil, backlog.ErrJobNotFound
	}
	return j.Clone(), nil
}

// SweepResults deletes every record expired at now.
func (m *Store) SweepResults(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, j := range m.results {
		if j.Expired(now) {
			delete(m.results, key)
			removed++
		}
	}
	return removed, nil
}

// CountResults returns the number of retained records in state,
// including expired records not yet swept.
func (m *Store) CountResults(_ context.Context, state job.State) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, j := range m.results {
		if j.State == state {
			n++
		}
	}
	return n, nil
}
