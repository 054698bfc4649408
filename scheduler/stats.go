package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/backlog/job"
)

const (
	// averageSamples is how many recent completions feed the rolling
	// average processing time.
	averageSamples = 20

	// dailyHorizon bounds the completed and failed counts in Stats.
	dailyHorizon = 24 * time.Hour
)

type counters struct {
	submitted int64
	completed int64
	failed    int64
	retried   int64
	rejected  int64
}

type sample struct {
	at time.Time
	d  time.Duration
}

// history keeps timing data for wait estimates and daily counts.
// Entries are appended in time order.
type history struct {
	window    time.Duration
	recent    []sample
	completed []time.Time
	failed    []time.Time
}

func newHistory(window time.Duration) *history {
	return &history{window: window}
}

func (h *history) recordCompletion(at time.Time, d time.Duration) {
	h.recent = append(h.recent, sample{at: at, d: d})
	if len(h.recent) > averageSamples {
		h.recent = h.recent[len(h.recent)-averageSamples:]
	}
	h.completed = append(h.completed, at)
}

func (h *history) recordFailure(at time.Time) {
	h.failed = append(h.failed, at)
}

// average returns the mean of the recent completions that finished
// inside the window, or fallback when there are none.
func (h *history) average(now time.Time, fallback time.Duration) time.Duration {
	var (
		total time.Duration
		n     int
	)
	cutoff := now.Add(-h.window)
	for _, smp := range h.recent {
		if smp.at.Before(cutoff) {
			continue
		}
		total += smp.d
		n++
	}
	if n == 0 {
		return fallback
	}
	return total / time.Duration(n)
}

func (h *history) prune(now time.Time) {
	cutoff := now.Add(-dailyHorizon)
	h.completed = trimBefore(h.completed, cutoff)
	h.failed = trimBefore(h.failed, cutoff)
}

func (h *history) since(ts []time.Time, now time.Time) int {
	cutoff := now.Add(-dailyHorizon)
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(cutoff) })
	return len(ts) - i
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(cutoff) })
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

// estimateWaitLocked estimates how long a job at 1-based position pos
// waits before dispatch: nothing if a slot is free for it, otherwise one
// average processing time per full round of Concurrency jobs ahead.
func (s *Scheduler) estimateWaitLocked(pos int, now time.Time) time.Duration {
	if pos <= 0 {
		return 0
	}
	free := s.cfg.Concurrency - len(s.inFlight)
	if free < 0 {
		free = 0
	}
	if pos <= free {
		return 0
	}
	rounds := (pos - free + s.cfg.Concurrency - 1) / s.cfg.Concurrency
	return time.Duration(rounds) * s.history.average(now, s.cfg.DefaultProcessingEstimate)
}

// Stats is a point-in-time summary of the scheduler.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Retried   int64
	Rejected  int64

	// RateLimited is the part of Rejected refused by the submit rate
	// limit rather than by queue capacity.
	RateLimited int64

	Pending  int
	InFlight int
	Delayed  int

	Concurrency   int
	MaxQueueDepth int

	AverageProcessingTime time.Duration

	CompletedLast24h int
	FailedLast24h    int

	RetainedCompleted int
	RetainedFailed    int
}

// MarshalJSON renders durations as milliseconds.
func (st Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Submitted               int64 `json:"submitted"`
		Completed               int64 `json:"completed"`
		Failed                  int64 `json:"failed"`
		Retried                 int64 `json:"retried"`
		Rejected                int64 `json:"rejected"`
		RateLimited             int64 `json:"rate_limited"`
		Pending                 int   `json:"pending"`
		InFlight                int   `json:"in_flight"`
		Delayed                 int   `json:"delayed"`
		Concurrency             int   `json:"concurrency"`
		MaxQueueDepth           int   `json:"max_queue_depth"`
		AverageProcessingTimeMs int64 `json:"average_processing_time_ms"`
		CompletedLast24h        int   `json:"completed_last_24h"`
		FailedLast24h           int   `json:"failed_last_24h"`
		RetainedCompleted       int   `json:"retained_completed"`
		RetainedFailed          int   `json:"retained_failed"`
	}{
		Submitted:               st.Submitted,
		Completed:               st.Completed,
		Failed:                  st.Failed,
		Retried:                 st.Retried,
		Rejected:                st.Rejected,
		RateLimited:             st.RateLimited,
		Pending:                 st.Pending,
		InFlight:                st.InFlight,
		Delayed:                 st.Delayed,
		Concurrency:             st.Concurrency,
		MaxQueueDepth:           st.MaxQueueDepth,
		AverageProcessingTimeMs: st.AverageProcessingTime.Milliseconds(),
		CompletedLast24h:        st.CompletedLast24h,
		FailedLast24h:           st.FailedLast24h,
		RetainedCompleted:       st.RetainedCompleted,
		RetainedFailed:          st.RetainedFailed,
	})
}

// Stats returns a snapshot of the scheduler's counters and gauges.
func (s *Scheduler) Stats() Stats {
	now := time.Now().UTC()

	s.mu.Lock()
	st := Stats{
		Submitted:             s.totals.submitted,
		Completed:             s.totals.completed,
		Failed:                s.totals.failed,
		Retried:               s.totals.retried,
		Rejected:              s.totals.rejected,
		RateLimited:           s.limiter.Denied(),
		Pending:               s.pending.Len(),
		InFlight:              len(s.inFlight),
		Delayed:               len(s.delayed),
		Concurrency:           s.cfg.Concurrency,
		MaxQueueDepth:         s.cfg.MaxQueueDepth,
		AverageProcessingTime: s.history.average(now, s.cfg.DefaultProcessingEstimate),
		CompletedLast24h:      s.history.since(s.history.completed, now),
		FailedLast24h:         s.history.since(s.history.failed, now),
	}
	s.mu.Unlock()

	ctx := context.Background()
	var err error
	if st.RetainedCompleted, err = s.results.CountResults(ctx, job.StateCompleted); err != nil {
		s.logger.Error("count completed results", slog.String("error", err.Error()))
	}
	if st.RetainedFailed, err = s.results.CountResults(ctx, job.StateFailed); err != nil {
		s.logger.Error("count failed results", slog.String("error", err.Error()))
	}
	return st
}
