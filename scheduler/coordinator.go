package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/worker"
)

type signalKind int

const (
	signalResult signalKind = iota
	signalTimeout
	signalRetryReady
)

// signal is a state transition requested by a worker or a timer.
type signal struct {
	kind    signalKind
	jobID   id.JobID
	attempt uint64
	result  worker.Result
}

type noticeKind int

const (
	noticeSubmitted noticeKind = iota
	noticeStarted
	noticeCompleted
	noticeFailed
	noticeRetrying
)

// notice is a lifecycle event waiting to be delivered to extensions.
// Notices are queued under the lock and handed, in order, to the notifier
// by the coordinator, which is the only goroutine that takes the outbox.
type notice struct {
	kind    noticeKind
	job     *job.Job
	elapsed time.Duration
	err     error
	attempt int
	nextAt  time.Time
}

// run is the coordinator loop. It is the only goroutine that mutates
// dispatch state in response to signals.
func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-s.signals:
			s.step(&sig)
		case <-s.kick:
			s.step(nil)
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			s.finish()
			return
		}
	}
}

// post delivers sig to the coordinator. It drops the signal once the
// coordinator has exited.
func (s *Scheduler) post(sig signal) {
	select {
	case s.signals <- sig:
	case <-s.done:
	}
}

// onResult is the worker pool's result handler.
func (s *Scheduler) onResult(r worker.Result) {
	s.post(signal{
		kind:    signalResult,
		jobID:   r.Task.Job.ID,
		attempt: r.Task.Attempt,
		result:  r,
	})
}

func (s *Scheduler) step(sig *signal) {
	s.mu.Lock()
	if sig != nil {
		now := time.Now().UTC()
		switch sig.kind {
		case signalResult:
			s.handleResultLocked(sig.result, now)
		case signalTimeout:
			s.handleTimeoutLocked(sig.jobID, sig.attempt, now)
		case signalRetryReady:
			s.handleRetryReadyLocked(sig.jobID, sig.attempt)
		}
	}
	s.dispatchLocked()
	if s.shuttingDown && len(s.inFlight) == 0 {
		s.drainOnce.Do(func() { close(s.drained) })
	}
	notices := s.takeOutboxLocked()
	s.mu.Unlock()

	s.notes.push(notices)
}

// dispatchLocked moves jobs from the pending queue into free worker
// slots, highest priority first.
func (s *Scheduler) dispatchLocked() {
	for !s.shuttingDown && len(s.inFlight) < s.cfg.Concurrency && s.pending.Len() > 0 {
		j := s.pending.Pop()
		rec := s.queued[j.ID]
		delete(s.queued, j.ID)

		now := time.Now().UTC()
		s.tokens++
		rec.attempt = s.tokens
		j.State = job.StateProcessing
		j.StartedAt = &now

		cancel, err := s.pool.Submit(worker.Task{
			Job:       j.Clone(),
			Processor: rec.processor,
			Attempt:   rec.attempt,
		})
		if err != nil {
			s.logger.Warn("dispatch deferred",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			j.State = job.StateQueued
			j.StartedAt = nil
			s.pending.PushFront(j)
			s.queued[j.ID] = rec
			return
		}

		rec.cancel = cancel
		jobID, attempt := j.ID, rec.attempt
		rec.timer = time.AfterFunc(s.cfg.JobTimeout, func() {
			s.post(signal{kind: signalTimeout, jobID: jobID, attempt: attempt})
		})
		s.inFlight[j.ID] = rec
		s.outbox = append(s.outbox, notice{kind: noticeStarted, job: j.Clone()})
	}
}

func (s *Scheduler) handleResultLocked(r worker.Result, now time.Time) {
	rec, ok := s.inFlight[r.Task.Job.ID]
	if !ok || rec.attempt != r.Task.Attempt {
		s.logger.Debug("discarded stale result",
			slog.String("job_id", r.Task.Job.ID.String()),
		)
		return
	}
	if r.Abandoned {
		// Only shutdown cancels a live attempt; finish accounts for it.
		return
	}

	rec.timer.Stop()
	delete(s.inFlight, r.Task.Job.ID)

	if r.Outcome.OK() {
		s.completeLocked(rec, r.Outcome.Value, now)
		return
	}
	s.failAttemptLocked(rec, r.Outcome.Err, now)
}

func (s *Scheduler) handleTimeoutLocked(jobID id.JobID, attempt uint64, now time.Time) {
	rec, ok := s.inFlight[jobID]
	if !ok || rec.attempt != attempt {
		return
	}
	delete(s.inFlight, jobID)
	rec.cancel()

	s.logger.Warn("job timed out",
		slog.String("job_id", jobID.String()),
		slog.Duration("timeout", s.cfg.JobTimeout),
	)
	s.failAttemptLocked(rec, job.TimeoutError(s.cfg.JobTimeout), now)
}

func (s *Scheduler) handleRetryReadyLocked(jobID id.JobID, attempt uint64) {
	rec, ok := s.delayed[jobID]
	if !ok || rec.attempt != attempt {
		return
	}
	delete(s.delayed, jobID)
	rec.timer = nil

	j := rec.job
	j.State = job.StateQueued
	j.StartedAt = nil
	// Retries re-enter at the head of the queue, ahead of fresh work at
	// any priority, and do not count against MaxQueueDepth admission.
	s.pending.PushFront(j)
	s.queued[jobID] = rec
}

func (s *Scheduler) completeLocked(rec *record, value any, now time.Time) {
	j := rec.job
	j.State = job.StateCompleted
	j.Result = value
	j.Error = nil
	j.ProcessingTime = now.Sub(*j.StartedAt)
	j.CompletedAt = &now
	expires := now.Add(s.cfg.ResultTTL)
	j.ExpiresAt = &expires

	s.retainLocked(j)
	s.totals.completed++
	s.history.recordCompletion(now, j.ProcessingTime)

	s.outbox = append(s.outbox, notice{
		kind:    noticeCompleted,
		job:     j.Clone(),
		elapsed: j.ProcessingTime,
	})
}

// failAttemptLocked schedules a retry while the job has retries left and
// marks it failed otherwise.
func (s *Scheduler) failAttemptLocked(rec *record, jerr *job.Error, now time.Time) {
	j := rec.job
	j.ProcessingTime = now.Sub(*j.StartedAt)
	jerr.Attempt = j.RetryCount + 1
	j.Error = jerr

	if j.RetryCount < j.MaxRetries {
		j.RetryCount++
		j.State = job.StateRetrying

		delay := s.bo.Delay(j.RetryCount)
		rec.nextAt = now.Add(delay)
		s.tokens++
		rec.attempt = s.tokens
		jobID, attempt := j.ID, rec.attempt
		rec.timer = time.AfterFunc(delay, func() {
			s.post(signal{kind: signalRetryReady, jobID: jobID, attempt: attempt})
		})
		s.delayed[j.ID] = rec
		s.totals.retried++

		s.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.Int("retry_count", j.RetryCount),
			slog.Duration("delay", delay),
			slog.String("error", jerr.Error()),
		)
		s.outbox = append(s.outbox, notice{
			kind:    noticeRetrying,
			job:     j.Clone(),
			err:     jerr,
			attempt: j.RetryCount,
			nextAt:  rec.nextAt,
		})
		return
	}

	j.State = job.StateFailed
	j.FailedAt = &now
	expires := now.Add(s.cfg.ResultTTL)
	j.ExpiresAt = &expires

	s.retainLocked(j)
	s.totals.failed++
	s.history.recordFailure(now)

	s.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.Int("retry_count", j.RetryCount),
		slog.String("kind", string(jerr.Kind)),
		slog.String("error", jerr.Message),
	)
	s.outbox = append(s.outbox, notice{
		kind: noticeFailed,
		job:  j.Clone(),
		err:  jerr,
	})
}

func (s *Scheduler) retainLocked(j *job.Job) {
	if err := s.results.PutResult(context.Background(), j); err != nil {
		s.logger.Error("retain result",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// cleanup reaps expired results and prunes the statistics history.
func (s *Scheduler) cleanup() {
	now := time.Now().UTC()

	n, err := s.results.SweepResults(context.Background(), now)
	if err != nil {
		s.logger.Error("sweep results", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Debug("expired results removed", slog.Int("count", n))
	}

	s.mu.Lock()
	s.history.prune(now)
	s.mu.Unlock()
}

// finish cancels what is still in flight, stops backoff timers and
// records the shutdown report. It runs on the coordinator as it exits.
// Abandoned jobs are forgotten: no worker runs them any more and their
// late results are dropped.
func (s *Scheduler) finish() {
	s.mu.Lock()
	for _, rec := range s.delayed {
		rec.timer.Stop()
	}
	s.report = ShutdownReport{
		Abandoned: len(s.inFlight),
		Pending:   s.pending.Len(),
		Delayed:   len(s.delayed),
	}
	for jobID, rec := range s.inFlight {
		rec.timer.Stop()
		rec.cancel()
		delete(s.inFlight, jobID)
		s.logger.Warn("abandoning in-flight job", slog.String("job_id", jobID.String()))
	}
	notices := s.takeOutboxLocked()
	s.mu.Unlock()

	s.notes.push(notices)
}

func (s *Scheduler) takeOutboxLocked() []notice {
	if len(s.outbox) == 0 {
		return nil
	}
	out := s.outbox
	s.outbox = nil
	return out
}

// emit delivers one notice to the extensions.
func (s *Scheduler) emit(ctx context.Context, n notice) {
	switch n.kind {
	case noticeSubmitted:
		s.extensions.EmitJobSubmitted(ctx, n.job)
	case noticeStarted:
		s.extensions.EmitJobStarted(ctx, n.job)
	case noticeCompleted:
		s.extensions.EmitJobCompleted(ctx, n.job, n.elapsed)
	case noticeFailed:
		s.extensions.EmitJobFailed(ctx, n.job, n.err)
	case noticeRetrying:
		s.extensions.EmitJobRetrying(ctx, n.job, n.attempt, n.nextAt)
	}
}
