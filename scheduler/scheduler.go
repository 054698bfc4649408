package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/backoff"
	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	mw "github.com/xraph/backlog/middleware"
	"github.com/xraph/backlog/observability"
	"github.com/xraph/backlog/queue"
	"github.com/xraph/backlog/store/memory"
	"github.com/xraph/backlog/worker"
)

// record is the scheduler's private view of a live job.
type record struct {
	job       *job.Job
	processor job.Processor

	// attempt is the token of the current dispatch or backoff. Signals
	// carrying an older token are stale and ignored.
	attempt uint64

	cancel context.CancelFunc
	timer  *time.Timer
	nextAt time.Time
}

// Scheduler accepts jobs, dispatches them to a bounded worker pool in
// priority order and tracks them until their results expire.
type Scheduler struct {
	cfg    backlog.Config
	logger *slog.Logger

	exts       []ext.Extension
	extensions *ext.Registry
	mws        []mw.Middleware
	bo         backoff.Strategy
	results    job.ResultStore
	limiter    *queue.Limiter
	pool       *worker.Pool

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu       sync.Mutex
	pending  *queue.Pending
	queued   map[id.JobID]*record
	inFlight map[id.JobID]*record
	delayed  map[id.JobID]*record
	outbox   []notice
	notes    *notifier
	totals   counters
	history  *history
	tokens   uint64

	started      bool
	shuttingDown bool

	signals chan signal
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}

	drained     chan struct{}
	drainOnce   sync.Once
	finished    chan struct{}
	report      ShutdownReport
	shutdownErr error
}

// ShutdownReport summarises what a shutdown left unfinished.
type ShutdownReport struct {
	// Abandoned is the number of in-flight jobs still running when the
	// grace period ended. Their contexts were cancelled.
	Abandoned int `json:"abandoned"`
	// Pending is the number of queued jobs that were never dispatched.
	Pending int `json:"pending"`
	// Delayed is the number of jobs that were waiting out a retry backoff.
	Delayed int `json:"delayed"`
}

// New builds a Scheduler from cfg. The scheduler does not process jobs
// until Start is called; jobs submitted before that wait in the queue.
func New(cfg backlog.Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:      cfg,
		logger:   slog.Default(),
		pending:  queue.NewPending(),
		queued:   make(map[id.JobID]*record),
		inFlight: make(map[id.JobID]*record),
		delayed:  make(map[id.JobID]*record),
		history:  newHistory(cfg.AverageWindow),
		signals:  make(chan signal, cfg.Concurrency*2+1),
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		drained:  make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.bo == nil {
		s.bo = backoff.Default(cfg.BaseRetryDelay)
	}
	if s.results == nil {
		s.results = memory.New()
	}
	s.limiter = queue.NewLimiter(cfg.SubmitRateLimit, cfg.SubmitBurst)
	s.notes = newNotifier(s.emit, hookTimeout)

	// Metrics extension first so that counters are recorded before any
	// user extension observes the event.
	s.extensions = ext.NewRegistry(s.logger)
	if s.meterProvider != nil {
		s.extensions.Register(observability.NewMetricsExtensionWithMeter(
			s.meterProvider.Meter("github.com/xraph/backlog"),
		))
	} else {
		s.extensions.Register(observability.NewMetricsExtension())
	}
	for _, e := range s.exts {
		s.extensions.Register(e)
	}

	var tracingMW mw.Middleware
	if s.tracerProvider != nil {
		tracingMW = mw.TracingWithTracer(s.tracerProvider.Tracer("github.com/xraph/backlog"))
	} else {
		tracingMW = mw.Tracing()
	}
	var metricsMW mw.Middleware
	if s.meterProvider != nil {
		metricsMW = mw.MetricsWithMeter(s.meterProvider.Meter("github.com/xraph/backlog"))
	} else {
		metricsMW = mw.Metrics()
	}
	chain := make([]mw.Middleware, 0, len(s.mws)+3)
	chain = append(chain, tracingMW, metricsMW, mw.Logging(s.logger))
	chain = append(chain, s.mws...)

	executor := worker.NewExecutor(s.logger, chain...)
	s.pool = worker.NewPool(executor, s.onResult, s.logger,
		worker.WithPoolConcurrency(cfg.Concurrency),
	)

	return s, nil
}

// Config returns the configuration the scheduler was built with.
func (s *Scheduler) Config() backlog.Config { return s.cfg }

// Extensions returns the extension registry.
func (s *Scheduler) Extensions() *ext.Registry { return s.extensions }

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *slog.Logger { return s.logger }

// Start launches the worker pool and the coordinator. It returns
// immediately. Calling Start more than once is a no-op; calling it after
// Shutdown fails with ErrShuttingDown.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return backlog.ErrShuttingDown
	}
	if s.started {
		return nil
	}
	if err := s.pool.Start(ctx); err != nil {
		return fmt.Errorf("backlog: start worker pool: %w", err)
	}
	s.started = true
	s.notes.start()

	s.logger.Info("scheduler started",
		slog.Int("concurrency", s.cfg.Concurrency),
		slog.Int("max_queue_depth", s.cfg.MaxQueueDepth),
		slog.Duration("job_timeout", s.cfg.JobTimeout),
	)

	go s.run()
	s.wake()
	return nil
}

// Submit enqueues a job for p with the given payload and returns its ID.
// It never blocks on processing. It fails with ErrShuttingDown once
// Shutdown has begun, ErrInvalidOptions for a nil processor or negative
// retries, ErrCapacityExceeded when MaxQueueDepth jobs are already
// pending and ErrRateLimited when the submission budget is spent.
func (s *Scheduler) Submit(p job.Processor, payload any, opts ...job.Option) (id.JobID, error) {
	if p == nil {
		return id.Nil, fmt.Errorf("%w: %w", backlog.ErrInvalidOptions, backlog.ErrNilProcessor)
	}
	o, err := job.Apply(opts...)
	if err != nil {
		return id.Nil, err
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return id.Nil, backlog.ErrShuttingDown
	}
	if s.pending.Len() >= s.cfg.MaxQueueDepth {
		s.totals.rejected++
		depth := s.pending.Len()
		s.mu.Unlock()
		s.logger.Warn("job rejected, queue full", slog.Int("depth", depth))
		return id.Nil, backlog.ErrCapacityExceeded
	}
	if !s.limiter.Allow() {
		s.totals.rejected++
		s.mu.Unlock()
		return id.Nil, backlog.ErrRateLimited
	}

	j := &job.Job{
		ID:         id.NewJobID(),
		Payload:    payload,
		Priority:   o.Priority,
		MaxRetries: o.MaxRetries,
		State:      job.StateQueued,
		CreatedAt:  time.Now().UTC(),
	}
	s.pending.Push(j)
	s.queued[j.ID] = &record{job: j, processor: p}
	s.totals.submitted++
	s.outbox = append(s.outbox, notice{kind: noticeSubmitted, job: j.Clone()})
	s.mu.Unlock()

	s.logger.Debug("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.Int("priority", j.Priority),
	)

	s.wake()
	return j.ID, nil
}

// Status reports the current view of jobID. Unknown IDs and expired
// results report StateNotFound.
func (s *Scheduler) Status(jobID id.JobID) job.StatusView {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.inFlight[jobID]; ok {
		return job.StatusView{
			State:      job.StateProcessing,
			StartedAt:  copyTime(rec.job.StartedAt),
			RetryCount: rec.job.RetryCount,
		}
	}

	if rec, ok := s.delayed[jobID]; ok {
		next := rec.nextAt
		return job.StatusView{
			State:         job.StateRetrying,
			RetryCount:    rec.job.RetryCount,
			NextAttemptAt: &next,
			Error:         rec.job.Error,
		}
	}

	if rec, ok := s.queued[jobID]; ok {
		pos := s.pending.Position(jobID)
		return job.StatusView{
			State:         job.StateQueued,
			RetryCount:    rec.job.RetryCount,
			Position:      pos,
			EstimatedWait: s.estimateWaitLocked(pos, now),
		}
	}

	j, err := s.results.GetResult(context.Background(), jobID, now)
	if err != nil {
		if !errors.Is(err, backlog.ErrJobNotFound) {
			s.logger.Error("result lookup failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
		return job.NotFound()
	}

	view := job.StatusView{
		State:          j.State,
		RetryCount:     j.RetryCount,
		ProcessingTime: j.ProcessingTime,
	}
	switch j.State {
	case job.StateCompleted:
		view.Result = j.Result
		view.CompletedAt = j.CompletedAt
	case job.StateFailed:
		view.Error = j.Error
		view.FailedAt = j.FailedAt
	}
	return view
}

// Result returns the retained terminal job for jobID, including its
// payload. It fails with ErrJobNotFound for live, unknown or expired jobs.
func (s *Scheduler) Result(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.results.GetResult(ctx, jobID, time.Now().UTC())
}

// Shutdown stops accepting jobs, gives in-flight jobs up to
// ShutdownTimeout (or until ctx is done, whichever comes first) to
// finish, then cancels the rest. Pending jobs are not dispatched.
// Shutdown is idempotent; later calls wait for the first and return its
// report. The error is ctx.Err() when ctx ended the grace period.
func (s *Scheduler) Shutdown(ctx context.Context) (ShutdownReport, error) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		select {
		case <-s.finished:
			return s.report, s.shutdownErr
		case <-ctx.Done():
			return ShutdownReport{}, ctx.Err()
		}
	}
	s.shuttingDown = true
	started := s.started
	s.mu.Unlock()

	s.logger.Info("scheduler shutting down")

	if !started {
		s.mu.Lock()
		s.report = ShutdownReport{Pending: s.pending.Len()}
		notices := s.takeOutboxLocked()
		s.mu.Unlock()
		for _, n := range notices {
			s.emit(ctx, n)
		}
		s.extensions.EmitShutdown(ctx)
		close(s.finished)
		return s.report, nil
	}

	s.wake()

	grace := time.NewTimer(s.cfg.ShutdownTimeout)
	defer grace.Stop()

	select {
	case <-s.drained:
	case <-grace.C:
		s.logger.Warn("shutdown grace period elapsed", slog.Duration("timeout", s.cfg.ShutdownTimeout))
	case <-ctx.Done():
		s.shutdownErr = ctx.Err()
	}

	close(s.stop)
	<-s.done

	if err := s.pool.Stop(ctx); err != nil {
		s.logger.Error("stop worker pool", slog.String("error", err.Error()))
	}
	if err := s.notes.close(ctx); err != nil {
		s.logger.Warn("lifecycle notices still pending at shutdown", slog.String("error", err.Error()))
	}
	s.extensions.EmitShutdown(context.WithoutCancel(ctx))

	s.logger.Info("scheduler stopped",
		slog.Int("abandoned", s.report.Abandoned),
		slog.Int("pending", s.report.Pending),
		slog.Int("delayed", s.report.Delayed),
	)
	close(s.finished)
	return s.report, s.shutdownErr
}

// wake asks the coordinator for a dispatch pass without blocking.
func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
