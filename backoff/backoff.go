// Package backoff provides retry delay strategies. Strategies are stateless
// and safe for concurrent use.
package backoff

import (
	"math"
	"time"
)

// Strategy computes how long a failed job waits before it is queued again.
type Strategy interface {
	// Delay returns the wait before retry attempt n. Attempt 1 is the
	// first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Func adapts an ordinary function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Linear waits Base * attempt, capped at Max when Max is positive.
// It is the scheduler's default.
type Linear struct {
	Base time.Duration
	Max  time.Duration
}

// NewLinear creates a linear strategy. A zero maxDelay means uncapped.
func NewLinear(base, maxDelay time.Duration) *Linear {
	return &Linear{Base: base, Max: maxDelay}
}

// Delay returns Base * attempt.
func (l *Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := l.Base * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Constant waits the same Interval before every retry.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns Interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// Exponential doubles the wait on each attempt: Base * 2^(attempt-1),
// capped at Max when Max is positive.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^(attempt-1).
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Default returns the linear strategy with the given base and no cap.
func Default(base time.Duration) Strategy {
	return NewLinear(base, 0)
}
