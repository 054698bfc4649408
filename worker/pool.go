package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xraph/backlog"
)

// Pool runs a fixed number of worker goroutines. Tasks are handed over
// with Submit and each finished attempt is reported to the handler on
// the worker goroutine that ran it.
type Pool struct {
	executor    *Executor
	handler     func(Result)
	concurrency int
	logger      *slog.Logger
	base        context.Context

	tasks chan pooled
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool

	activeJobs map[activeKey]context.CancelFunc
	activeMu   sync.Mutex
}

// activeKey tells apart attempts of the same job that overlap after a
// timeout.
type activeKey struct {
	jobID   string
	attempt uint64
}

type pooled struct {
	ctx    context.Context
	cancel context.CancelFunc
	task   Task
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// NewPool creates a worker pool. handler receives every result,
// abandoned ones included, and must not block for long.
func NewPool(executor *Executor, handler func(Result), logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		executor:    executor,
		handler:     handler,
		concurrency: 3,
		logger:      logger,
		base:        context.Background(),
		activeJobs:  make(map[activeKey]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	// A slot can be released by the scheduler before the worker that held
	// it has observed cancellation, so the buffer covers one full round.
	p.tasks = make(chan pooled, p.concurrency)
	return p
}

// Start launches the worker goroutines. It returns immediately. Attempt
// contexts derive from ctx without inheriting its cancellation.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return backlog.ErrPoolClosed
	}
	if p.running {
		return nil
	}
	p.running = true
	p.base = context.WithoutCancel(ctx)

	p.logger.Info("worker pool starting", slog.Int("concurrency", p.concurrency))

	for range p.concurrency {
		p.wg.Add(1)
		go p.workLoop()
	}
	return nil
}

// Submit hands t to a worker. It never blocks: it fails with
// ErrPoolSaturated when every buffered slot is taken and ErrPoolClosed
// when the pool is not running. The returned cancel func aborts the
// attempt.
func (p *Pool) Submit(t Task) (context.CancelFunc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil, backlog.ErrPoolClosed
	}

	ctx, cancel := context.WithCancel(p.base)
	k := keyOf(t)
	p.trackJob(k, cancel)
	select {
	case p.tasks <- pooled{ctx: ctx, cancel: cancel, task: t}:
	default:
		p.untrackJob(k)
		cancel()
		return nil, backlog.ErrPoolSaturated
	}
	return cancel, nil
}

// Stop stops accepting tasks and waits for the workers to drain what was
// already submitted. When ctx is done first, active attempts are
// cancelled and Stop waits for the workers to observe it.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.stopped = true
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.CancelAll()
		<-done
	}
	return nil
}

// Active returns the number of attempts submitted and not yet finished.
func (p *Pool) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeJobs)
}

// CancelAll cancels every attempt that has not finished.
func (p *Pool) CancelAll() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for k, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", k.jobID))
		cancel()
	}
}

// workLoop is run by each worker goroutine.
func (p *Pool) workLoop() {
	defer p.wg.Done()

	for pt := range p.tasks {
		res := p.executor.Execute(pt.ctx, pt.task)
		p.untrackJob(keyOf(pt.task))
		pt.cancel()
		if p.handler != nil {
			p.handler(res)
		}
	}
}

func keyOf(t Task) activeKey {
	return activeKey{jobID: t.Job.ID.String(), attempt: t.Attempt}
}

func (p *Pool) trackJob(k activeKey, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[k] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(k activeKey) {
	p.activeMu.Lock()
	delete(p.activeJobs, k)
	p.activeMu.Unlock()
}
