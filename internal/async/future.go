// Package async models operations that suspend while waiting on I/O and
// resume on an explicit execution context.
//
// Blocking work runs on background goroutines ([Go]) and settles a [Future].
// Every continuation registered through [Then], [Map] or [Future.OnComplete]
// is posted to an [Executor] rather than run on the goroutine that settled the
// future, so a single goroutine servicing that executor observes every
// resumption step of the operation in order.
package async

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Callback is the unit of work an Executor runs. A returned error is the
// callback's failure.
type Callback = func(state any) error

// Executor schedules continuations. Post must be safe to call from any
// goroutine and must not block on the callback's execution.
type Executor interface {
	Post(callback Callback, state any)
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recovered converts a recover() result into an error, or nil.
func Recovered(r any) error {
	if r == nil {
		return nil
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}

type continuation[T any] struct {
	ex Executor
	fn func(T, error)
}

// Future is a one-shot result cell. It may be settled from any goroutine;
// only the first settle wins.
type Future[T any] struct {
	mu        sync.Mutex
	settled   bool
	value     T
	err       error
	done      chan struct{}
	callbacks []continuation[T]
}

// NewFuture returns an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Failed returns a future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Resolve settles the future with a value.
func (f *Future[T]) Resolve(v T) bool {
	return f.Complete(v, nil)
}

// Reject settles the future with a failure.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.Complete(zero, err)
}

// Complete settles the future, reporting whether this call settled it.
// Registered continuations are dispatched after the lock is released.
func (f *Future[T]) Complete(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, c := range callbacks {
		f.dispatch(c)
	}
	return true
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value and error. ok is false while pending.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// OnComplete registers fn to receive the outcome. With a non-nil executor fn
// is posted to it; with a nil executor fn runs inline on the goroutine that
// settles the future (or immediately, if it already has).
func (f *Future[T]) OnComplete(ex Executor, fn func(T, error)) {
	c := continuation[T]{ex: ex, fn: fn}

	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, c)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	f.dispatch(c)
}

func (f *Future[T]) dispatch(c continuation[T]) {
	if c.ex == nil {
		c.fn(f.value, f.err)
		return
	}
	c.ex.Post(func(any) error {
		c.fn(f.value, f.err)
		return nil
	}, nil)
}
