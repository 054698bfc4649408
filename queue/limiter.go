package queue

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter throttles submissions with a token bucket. A nil Limiter or one
// built with a zero rate allows everything. It is safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	denied  atomic.Int64
}

// NewLimiter returns a limiter allowing perSecond sustained submissions
// with the given burst. Burst defaults to 1 when perSecond is set.
func NewLimiter(perSecond float64, burst int) *Limiter {
	l := &Limiter{}
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

// Allow consumes one token, reporting whether the submission may proceed.
func (l *Limiter) Allow() bool {
	if l == nil || l.limiter == nil || l.limiter.Allow() {
		return true
	}
	l.denied.Add(1)
	return false
}

// Denied returns how many submissions have been refused.
func (l *Limiter) Denied() int64 {
	if l == nil {
		return 0
	}
	return l.denied.Load()
}
