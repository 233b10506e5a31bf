// Package pump provides a single-consumer run loop for continuations.
//
// A Pump queues callbacks submitted from any goroutine and executes them, in
// submission order, on whichever goroutine calls Drive. It is the execution
// context of record for one bridge invocation: created, driven once, then
// disposed.
package pump

import (
	"context"
	"errors"
	"sync"

	"github.com/zjrosen/wikictl/internal/async"
	"github.com/zjrosen/wikictl/internal/log"
)

// ErrAbandoned is returned to a Send caller whose work item was discarded
// because the pump was disposed before running it.
var ErrAbandoned = errors.New("pump: work item abandoned")

// workItem is a queued continuation. done is non-nil only for Send.
type workItem struct {
	callback async.Callback
	state    any
	done     chan struct{}
	err      error
}

// Stats is a snapshot of pump counters.
type Stats struct {
	Posted    int
	Sent      int
	Executed  int
	Failed    int
	Abandoned int
}

// Pump serializes continuations onto the goroutine running Drive.
type Pump struct {
	mu       sync.Mutex
	entries  []*workItem
	wake     chan struct{}
	driven   bool
	disposed bool
	stats    Stats
}

var _ async.Executor = (*Pump)(nil)

// New creates an empty pump.
func New() *Pump {
	return &Pump{
		entries: make([]*workItem, 0),
		wake:    make(chan struct{}, 1),
	}
}

// Post enqueues callback without waiting for it to run. After Dispose the
// item is dropped.
func (p *Pump) Post(callback async.Callback, state any) {
	if callback == nil {
		panic("pump: Post called with nil callback")
	}
	if !p.enqueue(&workItem{callback: callback, state: state}) {
		log.Debug(log.CatPump, "Dropped post to disposed pump")
	}
}

// Send enqueues callback and blocks until the drive loop has run it,
// returning the callback's failure. It returns ErrAbandoned if the pump is
// disposed before the item runs. Send must not be called from a callback
// running on this pump's drive loop.
func (p *Pump) Send(callback async.Callback, state any) error {
	if callback == nil {
		panic("pump: Send called with nil callback")
	}
	item := &workItem{callback: callback, state: state, done: make(chan struct{})}
	if !p.enqueue(item) {
		return ErrAbandoned
	}
	<-item.done
	return item.err
}

func (p *Pump) enqueue(item *workItem) bool {
	p.mu.Lock()
	if p.disposed {
		p.stats.Abandoned++
		p.mu.Unlock()
		return false
	}
	p.entries = append(p.entries, item)
	if item.done != nil {
		p.stats.Sent++
	} else {
		p.stats.Posted++
	}
	p.mu.Unlock()

	// One pending wake-up is enough: Drive empties the queue before waiting.
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *Pump) dequeue() (*workItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return nil, false
	}
	item := p.entries[0]
	p.entries[0] = nil
	p.entries = p.entries[1:]
	return item, true
}

// Drive runs queued callbacks on the calling goroutine until the queue is
// empty and ctx is done. Cancellation is only checked once the queue has
// drained, so items queued before cancellation still run. Drive may be called
// once per pump.
func (p *Pump) Drive(ctx context.Context) {
	p.mu.Lock()
	switch {
	case p.disposed:
		p.mu.Unlock()
		panic("pump: Drive called after Dispose")
	case p.driven:
		p.mu.Unlock()
		panic("pump: Drive called twice")
	}
	p.driven = true
	p.mu.Unlock()

	log.Debug(log.CatPump, "Drive loop started")
	for {
		item, ok := p.dequeue()
		if !ok {
			if ctx.Err() != nil {
				log.Debug(log.CatPump, "Drive loop stopped", "reason", context.Cause(ctx))
				return
			}
			select {
			case <-p.wake:
			case <-ctx.Done():
			}
			continue
		}
		p.execute(item)
	}
}

func (p *Pump) execute(item *workItem) {
	err := run(item.callback, item.state)

	p.mu.Lock()
	p.stats.Executed++
	if err != nil {
		p.stats.Failed++
	}
	p.mu.Unlock()

	if item.done != nil {
		item.err = err
		close(item.done)
		return
	}
	if err != nil {
		// The operation reports its own terminal failure through its future.
		log.ErrorErr(log.CatPump, "Posted callback failed", err)
	}
}

func run(callback async.Callback, state any) (err error) {
	defer func() {
		if rerr := async.Recovered(recover()); rerr != nil {
			err = rerr
		}
	}()
	return callback(state)
}

// Dispose discards every queued item, releasing Send waiters with
// ErrAbandoned. Disposing twice panics.
func (p *Pump) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		panic("pump: Dispose called twice")
	}
	p.disposed = true
	remaining := p.entries
	p.entries = nil
	p.stats.Abandoned += len(remaining)
	p.mu.Unlock()

	for _, item := range remaining {
		if item.done != nil {
			item.err = ErrAbandoned
			close(item.done)
		}
	}
	if len(remaining) > 0 {
		log.Debug(log.CatPump, "Disposed pump with pending items", "count", len(remaining))
	}
}

// Len returns the number of queued items.
func (p *Pump) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Stats returns a snapshot of the pump counters.
func (p *Pump) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
