package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Broker)(nil)
	_ ext.JobSubmitted = (*Broker)(nil)
	_ ext.JobStarted   = (*Broker)(nil)
	_ ext.JobCompleted = (*Broker)(nil)
	_ ext.JobFailed    = (*Broker)(nil)
	_ ext.JobRetrying  = (*Broker)(nil)
	_ ext.Shutdown     = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the ext.Extension
// interface to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub. Delivery never blocks the scheduler: a slow
// subscriber loses events instead.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Publish broadcasts evt to every topic it resolves to.
func (b *Broker) Publish(evt *Event) {
	delivered, dropped := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
	b.totalDropped.Add(int64(dropped))
}

func (b *Broker) publishJob(t EventType, j *job.Job, data JobEventData) {
	data.JobID = j.ID.String()
	data.Priority = j.Priority
	data.RetryCount = j.RetryCount
	b.Publish(&Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(data.JobID),
		Data:      mustMarshal(data),
	})
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobSubmitted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobSubmitted, j, JobEventData{})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStarted, j, JobEventData{})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.publishJob(EventJobCompleted, j, JobEventData{ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	data := JobEventData{
		ElapsedMs: j.ProcessingTime.Milliseconds(),
		Error:     jobErr.Error(),
	}
	if j.Error != nil {
		data.ErrorKind = string(j.Error.Kind)
	}
	b.publishJob(EventJobFailed, j, data)
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextAttemptAt time.Time) error {
	data := JobEventData{
		Attempt:       attempt,
		NextAttemptAt: nextAttemptAt.UTC().Format(time.RFC3339Nano),
	}
	if j.Error != nil {
		data.Error = j.Error.Error()
		data.ErrorKind = string(j.Error.Kind)
	}
	b.publishJob(EventJobRetrying, j, data)
	return nil
}

// ── Shutdown ────────────────────────────────────────

// OnShutdown tells every subscriber the scheduler stopped, then closes them.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.Publish(&Event{
		Type:      EventShutdown,
		Timestamp: time.Now().UTC(),
		Data:      json.RawMessage(`{}`),
	})
	b.subscribers.Range(func(key, value any) bool {
		b.topics.UnsubscribeAll(key.(string)) //nolint:errcheck // sync.Map always stores string keys
		value.(*Subscriber).Close()           //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
