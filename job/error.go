package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/backlog"
)

// ErrorKind classifies why an attempt failed.
type ErrorKind string

const (
	// KindProcessor is an error returned by the processor.
	KindProcessor ErrorKind = "processor"
	// KindTimeout is a synthetic error for attempts that exceeded the
	// scheduler's job timeout.
	KindTimeout ErrorKind = "timeout"
	// KindPanic is a recovered processor panic.
	KindPanic ErrorKind = "panic"
)

// Coder is implemented by processor errors that carry a machine-readable
// code, e.g. "unsupported_format".
type Coder interface {
	Code() string
}

// StackTracer is implemented by errors that carry their own trace.
type StackTracer interface {
	StackTrace() string
}

// Error is the recorded detail of a failed attempt.
//
// Stack is filled for recovered panics, from the goroutine stack, and for
// processor errors whose chain implements StackTracer. A plain error
// returned by a processor carries no trace; Message and Code describe it.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Stack   string    `json:"stack,omitempty"`
	Attempt int       `json:"attempt"`

	cause error
}

// NewError classifies a processor error. Codes and traces are taken from
// the error chain when present. An *Error in the chain is copied.
func NewError(err error) *Error {
	var je *Error
	if errors.As(err, &je) {
		cp := *je
		return &cp
	}
	e := &Error{Kind: KindProcessor, Message: err.Error(), cause: err}
	var c Coder
	if errors.As(err, &c) {
		e.Code = c.Code()
	}
	var st StackTracer
	if errors.As(err, &st) {
		e.Stack = st.StackTrace()
	}
	if errors.Is(err, backlog.ErrTimeoutExceeded) {
		e.Kind = KindTimeout
	}
	return e
}

// PanicError records a recovered panic with the goroutine stack.
func PanicError(v any, stack []byte) *Error {
	return &Error{
		Kind:    KindPanic,
		Message: fmt.Sprintf("processor panicked: %v", v),
		Stack:   string(stack),
	}
}

// TimeoutError is the synthetic failure for an attempt that ran past d.
func TimeoutError(d time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("job exceeded timeout of %s", d),
		cause:   backlog.ErrTimeoutExceeded,
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the original processor error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is matches backlog.ErrTimeoutExceeded for timeout errors, including
// copies that lost their cause.
func (e *Error) Is(target error) bool {
	return target == backlog.ErrTimeoutExceeded && e.Kind == KindTimeout
}
