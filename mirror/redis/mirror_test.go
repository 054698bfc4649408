package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/mirror/redis"
)

func setupMirror(t *testing.T, ttl time.Duration) (*redis.Mirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redis.New(client, ttl), mr
}

func newJob() *job.Job {
	return &job.Job{
		ID:        id.NewJobID(),
		Priority:  3,
		State:     job.StateQueued,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMirror_Ping(t *testing.T) {
	m, _ := setupMirror(t, time.Hour)
	if err := m.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if m.Name() != "redis-mirror" {
		t.Errorf("Name = %q", m.Name())
	}
}

func TestMirror_Lifecycle(t *testing.T) {
	m, mr := setupMirror(t, time.Hour)
	ctx := context.Background()
	j := newJob()
	key := "backlog:job:" + j.ID.String()

	if err := m.OnJobSubmitted(ctx, j); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}
	if got := mr.HGet(key, "state"); got != "queued" {
		t.Errorf("state = %q, want queued", got)
	}
	if got := mr.HGet(key, "priority"); got != "3" {
		t.Errorf("priority = %q, want 3", got)
	}

	started := time.Now().UTC()
	j.StartedAt = &started
	if err := m.OnJobStarted(ctx, j); err != nil {
		t.Fatalf("OnJobStarted: %v", err)
	}
	view, err := m.Status(ctx, j.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.State != job.StateProcessing || view.StartedAt == nil || !view.StartedAt.Equal(started) {
		t.Errorf("view = %+v, want processing since %v", view, started)
	}

	j.Error = &job.Error{Kind: job.KindTimeout, Message: "job exceeded timeout of 30s", Attempt: 1}
	j.RetryCount = 1
	next := started.Add(time.Second)
	if err := m.OnJobRetrying(ctx, j, 1, next); err != nil {
		t.Fatalf("OnJobRetrying: %v", err)
	}
	view, _ = m.Status(ctx, j.ID)
	if view.State != job.StateRetrying || view.RetryCount != 1 {
		t.Errorf("view = %+v, want retrying with 1 retry", view)
	}
	if view.NextAttemptAt == nil || !view.NextAttemptAt.Equal(next) {
		t.Errorf("NextAttemptAt = %v, want %v", view.NextAttemptAt, next)
	}
	if view.Error == nil || view.Error.Kind != job.KindTimeout || view.Error.Attempt != 1 {
		t.Errorf("Error = %+v, want timeout on attempt 1", view.Error)
	}

	done := next.Add(200 * time.Millisecond)
	j.Error = nil
	j.CompletedAt = &done
	j.Result = map[string]string{"format": "jpeg"}
	if err := m.OnJobStarted(ctx, j); err != nil {
		t.Fatalf("OnJobStarted: %v", err)
	}
	if err := m.OnJobCompleted(ctx, j, 200*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	view, _ = m.Status(ctx, j.ID)
	if view.State != job.StateCompleted {
		t.Fatalf("State = %q, want completed", view.State)
	}
	if view.Error != nil || view.NextAttemptAt != nil {
		t.Errorf("completed view kept stale fields: %+v", view)
	}
	if view.ProcessingTime != 200*time.Millisecond {
		t.Errorf("ProcessingTime = %s, want 200ms", view.ProcessingTime)
	}
	raw, ok := view.Result.(json.RawMessage)
	if !ok || string(raw) != `{"format":"jpeg"}` {
		t.Errorf("Result = %v", view.Result)
	}
}

func TestMirror_Failed(t *testing.T) {
	m, _ := setupMirror(t, time.Hour)
	ctx := context.Background()
	j := newJob()

	failedAt := time.Now().UTC()
	j.State = job.StateFailed
	j.FailedAt = &failedAt
	j.ProcessingTime = 80 * time.Millisecond
	j.Error = &job.Error{Kind: job.KindProcessor, Message: "bad input", Code: "unsupported_format", Attempt: 1}
	if err := m.OnJobFailed(ctx, j, j.Error); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	view, err := m.Status(ctx, j.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.State != job.StateFailed || view.FailedAt == nil {
		t.Errorf("view = %+v, want failed", view)
	}
	if view.Error == nil || view.Error.Code != "unsupported_format" {
		t.Errorf("Error = %+v", view.Error)
	}
}

func TestMirror_TTL(t *testing.T) {
	m, mr := setupMirror(t, time.Minute)
	ctx := context.Background()
	j := newJob()
	key := "backlog:job:" + j.ID.String()

	if err := m.OnJobSubmitted(ctx, j); err != nil {
		t.Fatalf("OnJobSubmitted: %v", err)
	}
	if got := mr.TTL(key); got != time.Minute {
		t.Errorf("TTL = %s, want 1m", got)
	}

	mr.FastForward(2 * time.Minute)

	view, err := m.Status(ctx, j.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.State != job.StateNotFound {
		t.Errorf("State = %q, want not_found after TTL", view.State)
	}
}

func TestMirror_UnknownJob(t *testing.T) {
	m, _ := setupMirror(t, time.Hour)
	view, err := m.Status(context.Background(), id.NewJobID())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Found() {
		t.Errorf("State = %q, want not_found", view.State)
	}
}

func TestMirror_RedisDown(t *testing.T) {
	m, mr := setupMirror(t, time.Hour)
	mr.Close()

	if err := m.OnJobSubmitted(context.Background(), newJob()); err == nil {
		t.Fatal("expected error with redis unavailable")
	}
}
