package async

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errNilFuture = errors.New("async: continuation returned a nil future")

// Go runs fn on a background goroutine and settles the returned future with
// its result. A panic inside fn rejects the future with a *PanicError.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		defer func() {
			if err := Recovered(recover()); err != nil {
				f.Reject(err)
			}
		}()
		f.Complete(fn(ctx))
	}()
	return f
}

// Then is a suspension point: once f settles, the resumption is posted to ex.
// On resumption a failure of f short-circuits, a cancelled ctx unwinds the
// chain with ctx.Err(), and otherwise k continues the operation. The future k
// returns is forwarded to the result without another trip through ex.
func Then[T, R any](ctx context.Context, ex Executor, f *Future[T], k func(T) *Future[R]) *Future[R] {
	out := NewFuture[R]()
	f.OnComplete(ex, func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		if err := ctx.Err(); err != nil {
			out.Reject(err)
			return
		}
		next, err := call(func() *Future[R] { return k(v) })
		if err != nil {
			out.Reject(err)
			return
		}
		next.OnComplete(nil, func(r R, err error) { out.Complete(r, err) })
	})
	return out
}

// Catch is the failure counterpart of Then: when f fails with anything other
// than ctx's own cancellation, a resumption posted to ex calls k with the
// error. Successful values pass through without a trip through ex.
func Catch[T any](ctx context.Context, ex Executor, f *Future[T], k func(error) *Future[T]) *Future[T] {
	out := NewFuture[T]()
	f.OnComplete(nil, func(v T, err error) {
		if err == nil {
			out.Resolve(v)
			return
		}
		ex.Post(func(any) error {
			if cerr := ctx.Err(); cerr != nil {
				out.Reject(cerr)
				return nil
			}
			next, kerr := call(func() *Future[T] { return k(err) })
			if kerr != nil {
				out.Reject(kerr)
				return nil
			}
			next.OnComplete(nil, func(r T, err error) { out.Complete(r, err) })
			return nil
		}, nil)
	})
	return out
}

// Map is Then for continuations that finish synchronously.
func Map[T, R any](ctx context.Context, ex Executor, f *Future[T], fn func(T) (R, error)) *Future[R] {
	return Then(ctx, ex, f, func(v T) *Future[R] {
		r, err := fn(v)
		if err != nil {
			return Failed[R](err)
		}
		return Resolved(r)
	})
}

// Delay settles after d, or with ctx.Err() if ctx is done first.
func Delay(ctx context.Context, d time.Duration) *Future[struct{}] {
	f := NewFuture[struct{}]()
	timer := time.AfterFunc(d, func() { f.Resolve(struct{}{}) })
	stop := context.AfterFunc(ctx, func() {
		timer.Stop()
		f.Reject(ctx.Err())
	})
	f.OnComplete(nil, func(struct{}, error) {
		timer.Stop()
		stop()
	})
	return f
}

// All joins futures, keeping their order. Each settle is posted to ex; the
// first failure (or a cancelled ctx observed on resumption) rejects the
// result.
func All[T any](ctx context.Context, ex Executor, futures []*Future[T]) *Future[[]T] {
	out := NewFuture[[]T]()
	if len(futures) == 0 {
		out.Resolve([]T{})
		return out
	}

	var mu sync.Mutex
	results := make([]T, len(futures))
	remaining := len(futures)
	for i, f := range futures {
		f.OnComplete(ex, func(v T, err error) {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				out.Reject(err)
				return
			}
			mu.Lock()
			results[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				out.Resolve(results)
			}
		})
	}
	return out
}

func call[R any](k func() *Future[R]) (next *Future[R], err error) {
	defer func() {
		if rerr := Recovered(recover()); rerr != nil {
			err = rerr
		}
	}()
	next = k()
	if next == nil {
		next = Failed[R](errNilFuture)
	}
	return next, nil
}
