package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// subscription is one subscriber's buffered channel and the AfterFunc stop
// that detaches it from its context.
type subscription[T any] struct {
	ch   chan Event[T]
	stop func() bool
}

// Broker fans events out to subscribers.
//
// Publish never waits on a subscriber: when a subscriber's buffer is full the
// event is dropped for that subscriber and counted in Dropped. Invocation
// progress is advisory, so a slow terminal must never hold up a record.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[chan Event[T]]*subscription[T]
	closed     bool
	bufferSize int
	published  atomic.Uint64
	dropped    atomic.Uint64
}

var (
	_ Publisher[string]  = (*Broker[string])(nil)
	_ Subscriber[string] = (*Broker[string])(nil)
)

// NewBroker creates a broker whose subscribers buffer 64 events.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker with a per-subscriber buffer of size
// events. A size of zero delivers only to subscribers already waiting.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	return &Broker[T]{
		subs:       make(map[chan Event[T]]*subscription[T]),
		bufferSize: max(size, 0),
	}
}

// Subscribe registers a subscriber. Its channel is closed when ctx is done or
// the broker closes; subscribing to a closed broker returns a closed channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscription[T]{ch: make(chan Event[T], b.bufferSize)}
	sub.stop = context.AfterFunc(ctx, func() { b.remove(sub.ch) })
	b.subs[sub.ch] = sub
	return sub.ch
}

func (b *Broker[T]) remove(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish stamps payload and offers it to every subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	event := Event[T]{Type: eventType, Payload: payload, Timestamp: time.Now()}
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close detaches and closes every subscriber. Later calls are no-ops.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch, sub := range b.subs {
		sub.stop()
		close(ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns how many events were accepted before Close.
func (b *Broker[T]) Published() uint64 { return b.published.Load() }

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broker[T]) Dropped() uint64 { return b.dropped.Load() }
