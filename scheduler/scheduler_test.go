package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/backoff"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/scheduler"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() backlog.Config {
	cfg := backlog.DefaultConfig()
	cfg.Concurrency = 1
	cfg.JobTimeout = 5 * time.Second
	cfg.BaseRetryDelay = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func newScheduler(t *testing.T, cfg backlog.Config, opts ...scheduler.Option) *scheduler.Scheduler {
	t.Helper()
	opts = append([]scheduler.Option{scheduler.WithLogger(quietLogger())}, opts...)
	s, err := scheduler.New(cfg, opts...)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = s.Shutdown(ctx)
	})
	return s
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(d)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func waitState(t *testing.T, s *scheduler.Scheduler, jobID id.JobID, want job.State) job.StatusView {
	t.Helper()
	var view job.StatusView
	waitFor(t, 2*time.Second, func() bool {
		view = s.Status(jobID)
		return view.State == want
	})
	return view
}

// gate returns a processor that blocks until release is called or the
// attempt is cancelled.
func gate() (job.Processor, func()) {
	ch := make(chan struct{})
	var once sync.Once
	p := job.ProcessorFunc(func(ctx context.Context, _ any, _ id.JobID) (any, error) {
		select {
		case <-ch:
			return "released", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return p, func() { once.Do(func() { close(ch) }) }
}

func echo() job.Processor {
	return job.ProcessorFunc(func(_ context.Context, payload any, _ id.JobID) (any, error) {
		return payload, nil
	})
}

// orderRecorder records the payloads in the order they were processed.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) Process(_ context.Context, payload any, _ id.JobID) (any, error) {
	r.mu.Lock()
	r.order = append(r.order, payload.(string))
	r.mu.Unlock()
	return nil, nil
}

func (r *orderRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// holdSlot submits a gate job and waits until it occupies a worker slot.
func holdSlot(t *testing.T, s *scheduler.Scheduler) func() {
	t.Helper()
	p, release := gate()
	t.Cleanup(release)
	jobID, err := s.Submit(p, "gate")
	if err != nil {
		t.Fatalf("Submit gate: %v", err)
	}
	waitState(t, s, jobID, job.StateProcessing)
	return release
}

type codedErr struct{ code string }

func (e codedErr) Error() string { return "cannot decode image" }
func (e codedErr) Code() string  { return e.code }

// ──────────────────────────────────────────────────
// Construction & submission
// ──────────────────────────────────────────────────

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 0
	if _, err := scheduler.New(cfg); !errors.Is(err, backlog.ErrInvalidConfig) {
		t.Fatalf("New error = %v, want ErrInvalidConfig", err)
	}
}

func TestSubmit_InvalidOptions(t *testing.T) {
	s := newScheduler(t, testConfig())

	_, err := s.Submit(nil, "x")
	if !errors.Is(err, backlog.ErrInvalidOptions) || !errors.Is(err, backlog.ErrNilProcessor) {
		t.Errorf("nil processor error = %v, want ErrInvalidOptions and ErrNilProcessor", err)
	}

	_, err = s.Submit(echo(), "x", job.WithMaxRetries(-1))
	if !errors.Is(err, backlog.ErrInvalidOptions) {
		t.Errorf("negative retries error = %v, want ErrInvalidOptions", err)
	}

	if got := s.Stats().Submitted; got != 0 {
		t.Errorf("Submitted = %d, want 0", got)
	}
}

func TestSubmit_ReturnsPrefixedID(t *testing.T) {
	s := newScheduler(t, testConfig())

	jobID, err := s.Submit(echo(), "x")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID.Prefix() != id.PrefixJob {
		t.Errorf("prefix = %q, want %q", jobID.Prefix(), id.PrefixJob)
	}
}

func TestSubmit_BeforeStart(t *testing.T) {
	s, err := scheduler.New(testConfig(), scheduler.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _, _ = s.Shutdown(context.Background()) }()

	jobID, err := s.Submit(echo(), "early")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := s.Status(jobID).State; got != job.StateQueued {
		t.Fatalf("state before Start = %q, want queued", got)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	view := waitState(t, s, jobID, job.StateCompleted)
	if view.Result != "early" {
		t.Errorf("Result = %v, want early", view.Result)
	}
}

func TestStatus_UnknownID(t *testing.T) {
	s := newScheduler(t, testConfig())

	if got := s.Status(id.NewJobID()); got.State != job.StateNotFound {
		t.Errorf("State = %q, want not_found", got.State)
	}
	if got := s.Status(id.Nil); got.Found() {
		t.Errorf("nil ID should not be found, got %q", got.State)
	}
}

// ──────────────────────────────────────────────────
// Concurrency & ordering
// ──────────────────────────────────────────────────

func TestScheduler_InFlightNeverExceedsConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	s := newScheduler(t, cfg)

	var current, peak atomic.Int32
	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	})

	for range 8 {
		if _, err := s.Submit(p, nil); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	waitFor(t, 3*time.Second, func() bool { return s.Stats().Completed == 8 })

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestScheduler_PriorityOrder(t *testing.T) {
	s := newScheduler(t, testConfig())
	release := holdSlot(t, s)

	rec := &orderRecorder{}
	for _, sub := range []struct {
		name     string
		priority int
	}{{"low", 1}, {"high", 5}, {"mid", 3}} {
		if _, err := s.Submit(rec, sub.name, job.WithPriority(sub.priority)); err != nil {
			t.Fatalf("Submit %s: %v", sub.name, err)
		}
	}
	release()

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) == 3 })

	got := rec.snapshot()
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestScheduler_FIFOWithinPriority(t *testing.T) {
	s := newScheduler(t, testConfig())
	release := holdSlot(t, s)

	rec := &orderRecorder{}
	want := []string{"a", "b", "c", "d"}
	for _, name := range want {
		if _, err := s.Submit(rec, name, job.WithPriority(2)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	release()

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) == len(want) })

	got := rec.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestScheduler_HighPriorityJumpsQueue(t *testing.T) {
	s := newScheduler(t, testConfig())
	holdSlot(t, s)

	var normal []id.JobID
	for range 3 {
		jobID, err := s.Submit(echo(), nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		normal = append(normal, jobID)
	}
	urgent, err := s.Submit(echo(), nil, job.WithPriority(10))
	if err != nil {
		t.Fatalf("Submit urgent: %v", err)
	}

	if got := s.Status(urgent).Position; got != 1 {
		t.Errorf("urgent position = %d, want 1", got)
	}
	for i, jobID := range normal {
		if got := s.Status(jobID).Position; got != i+2 {
			t.Errorf("normal[%d] position = %d, want %d", i, got, i+2)
		}
	}
}

func TestScheduler_TwoSlotsThreeJobs(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	s := newScheduler(t, cfg)

	const work = 100 * time.Millisecond
	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		time.Sleep(work)
		return "done", nil
	})

	start := time.Now()
	ids := make([]id.JobID, 3)
	for i := range ids {
		jobID, err := s.Submit(p, nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids[i] = jobID
	}

	waitFor(t, work/2, func() bool { return s.Stats().InFlight == 2 })

	if got := s.Status(ids[0]).State; got != job.StateProcessing {
		t.Errorf("job 0 state = %q, want processing", got)
	}
	if got := s.Status(ids[1]).State; got != job.StateProcessing {
		t.Errorf("job 1 state = %q, want processing", got)
	}
	third := s.Status(ids[2])
	if third.State != job.StateQueued || third.Position != 1 {
		t.Errorf("job 2 = %q at %d, want queued at 1", third.State, third.Position)
	}

	waitFor(t, time.Second, func() bool { return s.Stats().Completed == 3 })

	// Two rounds of work; running the three one after another takes three.
	if elapsed := time.Since(start); elapsed > 2*work+60*time.Millisecond {
		t.Errorf("all three completed after %s, want about %s", elapsed, 2*work)
	}
	for _, jobID := range ids {
		if got := s.Status(jobID).State; got != job.StateCompleted {
			t.Errorf("state = %q, want completed", got)
		}
	}
}

// ──────────────────────────────────────────────────
// Admission control
// ──────────────────────────────────────────────────

func TestScheduler_CapacityExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueDepth = 2
	s := newScheduler(t, cfg)
	holdSlot(t, s)

	for range 2 {
		if _, err := s.Submit(echo(), nil); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	_, err := s.Submit(echo(), nil)
	if !errors.Is(err, backlog.ErrCapacityExceeded) {
		t.Fatalf("Submit error = %v, want ErrCapacityExceeded", err)
	}

	st := s.Stats()
	if st.Pending != 2 {
		t.Errorf("Pending = %d, want 2", st.Pending)
	}
	if st.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", st.Rejected)
	}
	if st.Submitted != 3 {
		t.Errorf("Submitted = %d, want 3", st.Submitted)
	}
}

func TestScheduler_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.SubmitRateLimit = 0.001
	cfg.SubmitBurst = 2
	s := newScheduler(t, cfg)

	for range 2 {
		if _, err := s.Submit(echo(), nil); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if _, err := s.Submit(echo(), nil); !errors.Is(err, backlog.ErrRateLimited) {
		t.Fatalf("Submit error = %v, want ErrRateLimited", err)
	}

	st := s.Stats()
	if st.RateLimited != 1 || st.Rejected != 1 {
		t.Errorf("rate limited/rejected = %d/%d, want 1/1", st.RateLimited, st.Rejected)
	}
}

// ──────────────────────────────────────────────────
// Retries & failures
// ──────────────────────────────────────────────────

func TestScheduler_RetryThenSucceed(t *testing.T) {
	s := newScheduler(t, testConfig())

	var calls atomic.Int32
	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	jobID, err := s.Submit(p, nil, job.WithMaxRetries(2))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view := waitState(t, s, jobID, job.StateCompleted)
	if view.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", view.RetryCount)
	}
	if view.Result != "ok" {
		t.Errorf("Result = %v, want ok", view.Result)
	}
	if view.Error != nil {
		t.Errorf("Error = %v, want nil after success", view.Error)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if got := s.Stats().Retried; got != 2 {
		t.Errorf("Retried = %d, want 2", got)
	}
}

func TestScheduler_RetryingStatus(t *testing.T) {
	s := newScheduler(t, testConfig(),
		scheduler.WithBackoff(backoff.NewConstant(time.Hour)),
	)

	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		return nil, errors.New("boom")
	})
	jobID, err := s.Submit(p, nil, job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view := waitState(t, s, jobID, job.StateRetrying)
	if view.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", view.RetryCount)
	}
	if view.NextAttemptAt == nil || time.Until(*view.NextAttemptAt) < 50*time.Minute {
		t.Errorf("NextAttemptAt = %v, want about an hour from now", view.NextAttemptAt)
	}
	if got := s.Stats().Delayed; got != 1 {
		t.Errorf("Delayed = %d, want 1", got)
	}
}

func TestScheduler_RetryRunsBeforeQueuedWork(t *testing.T) {
	s := newScheduler(t, testConfig())

	rec := &orderRecorder{}
	firstAttempt := make(chan struct{})
	var attempts atomic.Int32
	flaky := job.ProcessorFunc(func(ctx context.Context, payload any, jobID id.JobID) (any, error) {
		if attempts.Add(1) == 1 {
			<-firstAttempt
			return nil, errors.New("transient")
		}
		return rec.Process(ctx, payload, jobID)
	})

	retried, err := s.Submit(flaky, "retried", job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, s, retried, job.StateProcessing)

	holder, release := gate()
	t.Cleanup(release)
	held, err := s.Submit(holder, nil, job.WithPriority(20))
	if err != nil {
		t.Fatalf("Submit holder: %v", err)
	}
	urgent, err := s.Submit(rec, "urgent", job.WithPriority(10))
	if err != nil {
		t.Fatalf("Submit urgent: %v", err)
	}

	close(firstAttempt)
	waitState(t, s, held, job.StateProcessing)
	view := waitState(t, s, retried, job.StateQueued)
	if view.Position != 1 || view.RetryCount != 1 {
		t.Errorf("retried job at %d with %d retries, want position 1 after 1 retry", view.Position, view.RetryCount)
	}
	if got := s.Status(urgent).Position; got != 2 {
		t.Errorf("urgent position = %d, want 2", got)
	}

	release()
	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) == 2 })

	got := rec.snapshot()
	if got[0] != "retried" || got[1] != "urgent" {
		t.Errorf("order = %v, want [retried urgent]", got)
	}
}

func TestScheduler_LinearBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.BaseRetryDelay = 40 * time.Millisecond
	s := newScheduler(t, cfg)

	var mu sync.Mutex
	var starts []time.Time
	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		starts = append(starts, time.Now())
		if len(starts) <= 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	jobID, err := s.Submit(p, nil, job.WithMaxRetries(2))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, s, jobID, job.StateCompleted)

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(starts))
	}
	for i, want := range []time.Duration{cfg.BaseRetryDelay, 2 * cfg.BaseRetryDelay} {
		if gap := starts[i+1].Sub(starts[i]); gap < want {
			t.Errorf("gap before retry %d = %s, want at least %s", i+1, gap, want)
		}
	}
}

func TestScheduler_RetryBypassesQueueDepth(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueDepth = 1
	s := newScheduler(t, cfg,
		scheduler.WithBackoff(backoff.NewConstant(100*time.Millisecond)),
	)

	firstAttempt := make(chan struct{})
	var attempts atomic.Int32
	flaky := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		if attempts.Add(1) == 1 {
			<-firstAttempt
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	retried, err := s.Submit(flaky, nil, job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, s, retried, job.StateProcessing)

	holder, release := gate()
	t.Cleanup(release)
	held, err := s.Submit(holder, nil)
	if err != nil {
		t.Fatalf("Submit holder: %v", err)
	}
	if _, err := s.Submit(echo(), nil); !errors.Is(err, backlog.ErrCapacityExceeded) {
		t.Fatalf("Submit on full queue = %v, want ErrCapacityExceeded", err)
	}

	close(firstAttempt)
	waitState(t, s, held, job.StateProcessing)
	waiting, err := s.Submit(echo(), nil)
	if err != nil {
		t.Fatalf("Submit after dispatch: %v", err)
	}

	waitState(t, s, retried, job.StateQueued)
	if got := s.Stats().Pending; got != 2 {
		t.Errorf("Pending = %d, want 2 with the retry above MaxQueueDepth", got)
	}
	if _, err := s.Submit(echo(), nil); !errors.Is(err, backlog.ErrCapacityExceeded) {
		t.Errorf("Submit with retry queued = %v, want ErrCapacityExceeded", err)
	}

	release()
	waitState(t, s, retried, job.StateCompleted)
	waitState(t, s, waiting, job.StateCompleted)
}

func TestScheduler_RetriesExhausted(t *testing.T) {
	s := newScheduler(t, testConfig())

	var calls atomic.Int32
	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		calls.Add(1)
		return nil, codedErr{code: "unsupported_format"}
	})

	jobID, err := s.Submit(p, nil, job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view := waitState(t, s, jobID, job.StateFailed)
	if view.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", view.RetryCount)
	}
	if view.Error == nil {
		t.Fatal("Error is nil")
	}
	if view.Error.Kind != job.KindProcessor || view.Error.Code != "unsupported_format" {
		t.Errorf("Error = %+v, want processor/unsupported_format", view.Error)
	}
	if view.Error.Attempt != 2 {
		t.Errorf("Error.Attempt = %d, want 2", view.Error.Attempt)
	}
	if view.FailedAt == nil {
		t.Error("FailedAt is nil")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestScheduler_PanicFailsJob(t *testing.T) {
	s := newScheduler(t, testConfig())

	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		panic("corrupt header")
	})
	jobID, err := s.Submit(p, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view := waitState(t, s, jobID, job.StateFailed)
	if view.Error == nil || view.Error.Kind != job.KindPanic {
		t.Fatalf("Error = %+v, want panic kind", view.Error)
	}
	if view.Error.Stack == "" {
		t.Error("panic error should carry a stack")
	}
}

// ──────────────────────────────────────────────────
// Timeouts
// ──────────────────────────────────────────────────

func TestScheduler_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.JobTimeout = 50 * time.Millisecond
	s := newScheduler(t, cfg)

	p, _ := gate()
	jobID, err := s.Submit(p, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view := waitState(t, s, jobID, job.StateFailed)
	if view.Error == nil || view.Error.Kind != job.KindTimeout {
		t.Fatalf("Error = %+v, want timeout kind", view.Error)
	}
	if !errors.Is(view.Error, backlog.ErrTimeoutExceeded) {
		t.Error("timeout error should match ErrTimeoutExceeded")
	}
	if view.ProcessingTime < 50*time.Millisecond || view.ProcessingTime > 250*time.Millisecond {
		t.Errorf("ProcessingTime = %s, want about 50ms", view.ProcessingTime)
	}
}

func TestScheduler_TimeoutDiscardsLateResult(t *testing.T) {
	cfg := testConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	s := newScheduler(t, cfg)

	finished := make(chan struct{})
	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		defer close(finished)
		time.Sleep(100 * time.Millisecond)
		return "late", nil
	})
	jobID, err := s.Submit(p, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitState(t, s, jobID, job.StateFailed)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("processor never returned")
	}
	time.Sleep(20 * time.Millisecond)

	view := s.Status(jobID)
	if view.State != job.StateFailed || view.Result != nil {
		t.Errorf("after late return: state %q result %v, want failed with no result", view.State, view.Result)
	}
	if got := s.Stats().Completed; got != 0 {
		t.Errorf("Completed = %d, want 0", got)
	}
}

func TestScheduler_TimeoutFreesSlot(t *testing.T) {
	cfg := testConfig()
	cfg.JobTimeout = 30 * time.Millisecond
	s := newScheduler(t, cfg)

	stuck := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return nil, nil
	})
	if _, err := s.Submit(stuck, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	next, err := s.Submit(echo(), "next")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 300*time.Millisecond, func() bool {
		return s.Status(next).State == job.StateCompleted
	})
}

// ──────────────────────────────────────────────────
// Retention
// ──────────────────────────────────────────────────

func TestScheduler_ResultExpires(t *testing.T) {
	cfg := testConfig()
	cfg.ResultTTL = 50 * time.Millisecond
	cfg.CleanupInterval = 20 * time.Millisecond
	s := newScheduler(t, cfg)

	jobID, err := s.Submit(echo(), "thumb")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view := waitState(t, s, jobID, job.StateCompleted)
	if view.CompletedAt == nil {
		t.Fatal("CompletedAt is nil")
	}
	if got := s.Stats().RetainedCompleted; got != 1 {
		t.Errorf("RetainedCompleted = %d, want 1", got)
	}

	waitState(t, s, jobID, job.StateNotFound)
	waitFor(t, time.Second, func() bool { return s.Stats().RetainedCompleted == 0 })

	if got := s.Stats().Completed; got != 1 {
		t.Errorf("Completed total = %d, want 1 after expiry", got)
	}
}

func TestScheduler_Result(t *testing.T) {
	s := newScheduler(t, testConfig())

	jobID, err := s.Submit(echo(), "payload")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, s, jobID, job.StateCompleted)

	j, err := s.Result(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if j.Payload != "payload" || j.Result != "payload" {
		t.Errorf("job = %+v, want payload retained", j)
	}

	if _, err := s.Result(context.Background(), id.NewJobID()); !errors.Is(err, backlog.ErrJobNotFound) {
		t.Errorf("unknown Result error = %v, want ErrJobNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Estimates & stats
// ──────────────────────────────────────────────────

func TestScheduler_EstimatedWait(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultProcessingEstimate = time.Second
	s := newScheduler(t, cfg)
	holdSlot(t, s)

	first, _ := s.Submit(echo(), nil)
	second, _ := s.Submit(echo(), nil)

	if got := s.Status(first).EstimatedWait; got != time.Second {
		t.Errorf("first wait = %s, want 1s", got)
	}
	if got := s.Status(second).EstimatedWait; got != 2*time.Second {
		t.Errorf("second wait = %s, want 2s", got)
	}
}

func TestScheduler_Stats(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	s := newScheduler(t, cfg)

	fail := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		return nil, errors.New("nope")
	})
	for range 3 {
		if _, err := s.Submit(echo(), nil); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if _, err := s.Submit(fail, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		st := s.Stats()
		return st.Completed == 3 && st.Failed == 1
	})

	st := s.Stats()
	if st.Submitted != 4 {
		t.Errorf("Submitted = %d, want 4", st.Submitted)
	}
	if st.CompletedLast24h != 3 || st.FailedLast24h != 1 {
		t.Errorf("last 24h = %d/%d, want 3/1", st.CompletedLast24h, st.FailedLast24h)
	}
	if st.RetainedCompleted != 3 || st.RetainedFailed != 1 {
		t.Errorf("retained = %d/%d, want 3/1", st.RetainedCompleted, st.RetainedFailed)
	}
	if st.Pending != 0 || st.InFlight != 0 {
		t.Errorf("pending/in-flight = %d/%d, want 0/0", st.Pending, st.InFlight)
	}
	if st.Concurrency != 2 || st.MaxQueueDepth != cfg.MaxQueueDepth {
		t.Errorf("limits = %d/%d", st.Concurrency, st.MaxQueueDepth)
	}
	if st.AverageProcessingTime >= cfg.DefaultProcessingEstimate {
		t.Errorf("AverageProcessingTime = %s, want measured value", st.AverageProcessingTime)
	}
}

// ──────────────────────────────────────────────────
// Shutdown
// ──────────────────────────────────────────────────

func TestShutdown_DrainsInFlight(t *testing.T) {
	s, err := scheduler.New(testConfig(), scheduler.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p := job.ProcessorFunc(func(_ context.Context, _ any, _ id.JobID) (any, error) {
		time.Sleep(40 * time.Millisecond)
		return "ok", nil
	})
	jobID, err := s.Submit(p, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, s, jobID, job.StateProcessing)

	report, err := s.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if report != (scheduler.ShutdownReport{}) {
		t.Errorf("report = %+v, want empty", report)
	}
	if got := s.Status(jobID).State; got != job.StateCompleted {
		t.Errorf("state = %q, want completed", got)
	}
}

func TestShutdown_AbandonsAfterGrace(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	s, err := scheduler.New(cfg, scheduler.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var cancelled atomic.Bool
	p := job.ProcessorFunc(func(ctx context.Context, _ any, _ id.JobID) (any, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	})
	held, err := s.Submit(p, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, s, held, job.StateProcessing)
	for range 2 {
		if _, err := s.Submit(echo(), nil); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	start := time.Now()
	report, err := s.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took %s", elapsed)
	}
	want := scheduler.ShutdownReport{Abandoned: 1, Pending: 2}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}

	waitFor(t, time.Second, cancelled.Load)

	if got := s.Status(held).State; got != job.StateNotFound {
		t.Errorf("abandoned job state = %q, want not_found", got)
	}
	if got := s.Stats().InFlight; got != 0 {
		t.Errorf("InFlight after shutdown = %d, want 0", got)
	}

	if _, err := s.Submit(echo(), nil); !errors.Is(err, backlog.ErrShuttingDown) {
		t.Errorf("Submit after shutdown = %v, want ErrShuttingDown", err)
	}

	again, err := s.Shutdown(context.Background())
	if err != nil || again != report {
		t.Errorf("second Shutdown = %+v, %v; want %+v, nil", again, err, report)
	}
}

func TestShutdown_ContextDeadline(t *testing.T) {
	s, err := scheduler.New(testConfig(), scheduler.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p, release := gate()
	defer release()
	held, _ := s.Submit(p, nil)
	waitState(t, s, held, job.StateProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report, err := s.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown error = %v, want DeadlineExceeded", err)
	}
	if report.Abandoned != 1 {
		t.Errorf("Abandoned = %d, want 1", report.Abandoned)
	}
}

func TestShutdown_WithoutStart(t *testing.T) {
	s, err := scheduler.New(testConfig(), scheduler.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Submit(echo(), nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	report, err := s.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if report.Pending != 1 {
		t.Errorf("Pending = %d, want 1", report.Pending)
	}
	if err := s.Start(context.Background()); !errors.Is(err, backlog.ErrShuttingDown) {
		t.Errorf("Start after shutdown = %v, want ErrShuttingDown", err)
	}
}
