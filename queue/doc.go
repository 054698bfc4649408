// Package queue holds the scheduler's pending list and its submission
// rate limiter.
//
// # Pending
//
// [Pending] is an ordered list of waiting jobs. Higher priority goes
// first; equal priorities keep submission order. A new job is inserted
// immediately before the first entry with a strictly lower priority:
//
//	p := queue.NewPending()
//	p.Push(a) // priority 1
//	p.Push(b) // priority 5
//	p.Push(c) // priority 5
//	// order: b, c, a
//
// Jobs coming back from a failed attempt are returned with [Pending.PushFront]
// and skip the priority order entirely. Pending is not safe for concurrent
// use; the scheduler guards it with its own lock.
//
// # Limiter
//
// [Limiter] is a token bucket (golang.org/x/time/rate) consulted on each
// submission. A zero rate disables it:
//
//	l := queue.NewLimiter(50, 100) // 50 submissions/s, bursts of 100
//	if !l.Allow() {
//	    return backlog.ErrRateLimited
//	}
package queue
