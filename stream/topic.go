package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Topic names follow a pattern:
//
//	job:<jobID>   — events for a specific job
//	jobs          — all job lifecycle events
//	firehose      — everything, scheduler events included

const (
	TopicJobs     = "jobs"
	TopicFirehose = "firehose"
)

// JobTopic returns the topic name for a specific job.
func JobTopic(jobID string) string { return "job:" + jobID }

// TopicRegistry manages subscriber sets per topic.
// It is safe for concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe adds a subscriber to a topic, creating the topic if needed.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// Unsubscribe removes a subscriber from a topic. Cleans up empty topics.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.unsubscribeLocked(topic, subscriberID)
}

// UnsubscribeAll removes a subscriber from all topics.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic := range tr.topics {
		tr.unsubscribeLocked(topic, subscriberID)
	}
}

func (tr *TopicRegistry) unsubscribeLocked(topic, subscriberID string) {
	subs, ok := tr.topics[topic]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// Broadcast sends an event to every subscriber on any of the topics,
// once per subscriber. It returns how many received it.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) (delivered, dropped int) {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// TopicCount returns the number of active topics.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on a topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}

// resolveTopics returns all topics an event is published to.
func resolveTopics(evt *Event) []string {
	topics := []string{TopicFirehose}
	if strings.HasPrefix(string(evt.Type), "job.") {
		topics = append(topics, TopicJobs)
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	return topics
}

// ParseTopicEntity extracts the entity type and ID from a topic string.
// "job:job_abc123" returns ("job", "job_abc123"); global topics return
// ("", "").
func ParseTopicEntity(topic string) (entityType, entityID string) {
	idx := strings.IndexByte(topic, ':')
	if idx < 0 {
		return "", ""
	}
	return topic[:idx], topic[idx+1:]
}

// ValidateTopic checks whether a topic string is valid.
func ValidateTopic(topic string) error {
	switch topic {
	case TopicJobs, TopicFirehose:
		return nil
	}

	entityType, entityID := ParseTopicEntity(topic)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	if entityType != "job" {
		return fmt.Errorf("stream: unknown topic entity type %q", entityType)
	}
	return nil
}
