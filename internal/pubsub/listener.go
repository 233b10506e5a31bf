package pubsub

import (
	"context"
	"fmt"
	"io"
)

// ContinuousListener keeps one subscription open and hands out events one at
// a time.
type ContinuousListener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewContinuousListener creates a new listener that subscribes to the broker.
// The subscription is automatically cleaned up when the context is cancelled.
func NewContinuousListener[T any](ctx context.Context, broker *Broker[T]) *ContinuousListener[T] {
	return &ContinuousListener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx),
	}
}

// Next blocks for the next event. It returns false once the context is done
// or the subscription has been closed.
func (l *ContinuousListener[T]) Next() (Event[T], bool) {
	select {
	case <-l.ctx.Done():
		return Event[T]{}, false
	case event, ok := <-l.ch:
		return event, ok
	}
}

// Forward writes every event payload to w until the listener stops.
// It returns when Next reports false, so callers usually run it on its own
// goroutine.
func (l *ContinuousListener[T]) Forward(w io.Writer) {
	for {
		event, ok := l.Next()
		if !ok {
			return
		}
		_, _ = fmt.Fprint(w, event.Payload)
	}
}
