package queue

import (
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Pending is the priority-ordered list of jobs waiting for a worker.
type Pending struct {
	items []*job.Job
}

// NewPending returns an empty list.
func NewPending() *Pending {
	return &Pending{}
}

// Len returns the number of waiting jobs.
func (p *Pending) Len() int { return len(p.items) }

// Push inserts j before the first entry whose priority is strictly lower
// than j's, or at the end when there is none.
func (p *Pending) Push(j *job.Job) {
	at := len(p.items)
	for i, it := range p.items {
		if it.Priority < j.Priority {
			at = i
			break
		}
	}
	p.items = append(p.items, nil)
	copy(p.items[at+1:], p.items[at:])
	p.items[at] = j
}

// PushFront puts j at the head of the list regardless of its priority.
func (p *Pending) PushFront(j *job.Job) {
	p.items = append(p.items, nil)
	copy(p.items[1:], p.items)
	p.items[0] = j
}

// Pop removes and returns the head of the list, or nil when empty.
func (p *Pending) Pop() *job.Job {
	if len(p.items) == 0 {
		return nil
	}
	j := p.items[0]
	p.items[0] = nil
	p.items = p.items[1:]
	return j
}

// Position returns the 1-based position of jobID, or 0 if it is not
// waiting.
func (p *Pending) Position(jobID id.JobID) int {
	for i, it := range p.items {
		if it.ID == jobID {
			return i + 1
		}
	}
	return 0
}
