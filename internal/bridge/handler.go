// Package bridge lets a synchronous, one-record-at-a-time command host drive
// asynchronous operations to completion on the calling goroutine.
//
// A Handler spans one command execution. Begin creates the cancellation
// signal, Invoke runs one unit of work through a fresh pump.Pump, Cancel may be
// called from any goroutine at any time, and End releases the signal once no
// further records will be processed.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/wikictl/internal/async"
	"github.com/zjrosen/wikictl/internal/log"
	"github.com/zjrosen/wikictl/internal/pubsub"
	"github.com/zjrosen/wikictl/internal/pump"
	"github.com/zjrosen/wikictl/internal/tracing"
)

// errOperationDone is the cancel cause used to stop the drive loop once the
// operation has settled.
var errOperationDone = errors.New("bridge: operation settled")

// Operation is one asynchronous unit of work. It must schedule every
// resumption step through ex and consult ctx at each suspension point.
type Operation[T any] func(ctx context.Context, ex async.Executor) *async.Future[T]

// Outcome is the result of a unit of work that did not fail.
// Abandoned is set when cancellation stopped the work before it produced a
// value.
type Outcome[T any] struct {
	ID        string
	Value     T
	Abandoned bool

	// Steps counts the continuations the pump executed for this invocation.
	Steps int
}

// Config wires optional collaborators into a Handler.
type Config struct {
	// Command names the host command, used for spans and the journal.
	Command string

	// Tracer creates one span per invocation. Nil disables tracing.
	Tracer trace.Tracer

	// Events receives lifecycle events. Nil disables publishing.
	Events pubsub.Publisher[Event]

	// Journal records each finished invocation. Nil disables journaling.
	Journal Journal
}

// Handler adapts a synchronous host to asynchronous operations.
type Handler[T any] struct {
	cfg    Config
	tracer trace.Tracer

	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	cancelRequested bool
	begun           bool
	ended           bool
	state           State
}

// New creates an idle handler.
func New[T any](cfg Config) *Handler[T] {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &Handler[T]{
		cfg:    cfg,
		tracer: tracer,
		state:  StateIdle,
	}
}

// Begin creates the cancellation signal shared by every Invoke until End.
// A Cancel that arrived before Begin leaves the signal already fired.
func (h *Handler[T]) Begin(parent context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.ended:
		panic("bridge: Begin called after End")
	case h.begun:
		panic("bridge: Begin called twice")
	}

	h.ctx, h.cancel = context.WithCancel(parent)
	h.begun = true
	if h.cancelRequested {
		h.cancel()
	}
	log.Debug(log.CatBridge, "Handler begun", "command", h.cfg.Command)
}

// Invoke runs op to completion on the calling goroutine. A failure of op is
// returned verbatim; a cancellation that stopped op early yields an abandoned
// Outcome and a nil error. Invoke panics when called before Begin, after End,
// or while another Invoke on the same handler is running.
func (h *Handler[T]) Invoke(target string, op Operation[T]) (Outcome[T], error) {
	h.mu.Lock()
	switch {
	case h.ended:
		h.mu.Unlock()
		panic("bridge: Invoke called after End")
	case !h.begun:
		h.mu.Unlock()
		panic("bridge: Invoke called before Begin")
	case h.state == StateRunning:
		h.mu.Unlock()
		panic("bridge: Invoke is not reentrant")
	}
	life := h.ctx
	h.state = StateRunning
	h.mu.Unlock()

	out := Outcome[T]{ID: uuid.NewString()}
	started := time.Now()

	ctx, span := h.tracer.Start(life, tracing.SpanPrefixInvocation+h.cfg.Command,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(tracing.AttrInvocationID, out.ID),
			attribute.String(tracing.AttrCommandName, h.cfg.Command),
			attribute.String(tracing.AttrInvocationTarget, target),
		),
	)
	defer span.End()

	h.publish(pubsub.StartedEvent, Event{ID: out.ID, Command: h.cfg.Command, Target: target, State: StateRunning})

	var (
		value    T
		err      error
		finished bool
	)
	if life.Err() == nil {
		value, err, finished, out.Steps = h.run(ctx, op)
	}

	state := StateCompleted
	switch {
	case !finished:
		state = StateCancelled
	case err != nil && life.Err() != nil && errors.Is(err, context.Canceled):
		// The operation unwound because of our own cancellation.
		state = StateCancelled
		err = nil
	case err != nil:
		state = StateFailed
	}

	if state == StateCompleted {
		out.Value = value
	}
	out.Abandoned = state == StateCancelled

	h.finish(ctx, span, out.ID, target, state, err, time.Since(started))
	return out, err
}

// run drives op on a fresh pump. finished is false when the drive loop was
// stopped before op settled.
func (h *Handler[T]) run(ctx context.Context, op Operation[T]) (value T, err error, finished bool, steps int) {
	p := pump.New()
	defer p.Dispose()

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	fut := start(runCtx, p, op)
	fut.OnComplete(nil, func(T, error) { stop(errOperationDone) })

	p.Drive(runCtx)

	stats := p.Stats()
	log.Debug(log.CatBridge, "Drive loop returned",
		"executed", stats.Executed, "failed", stats.Failed, "pending", p.Len())

	value, err, finished = fut.Result()
	return value, err, finished, stats.Executed
}

// start invokes op, turning a panic or a nil future into a failed future.
func start[T any](ctx context.Context, ex async.Executor, op Operation[T]) (fut *async.Future[T]) {
	defer func() {
		if err := async.Recovered(recover()); err != nil {
			fut = async.Failed[T](err)
		}
	}()
	fut = op(ctx, ex)
	if fut == nil {
		fut = async.Failed[T](errors.New("bridge: operation returned a nil future"))
	}
	return fut
}

func (h *Handler[T]) finish(ctx context.Context, span trace.Span, id, target string, state State, err error, elapsed time.Duration) {
	h.mu.Lock()
	if !h.ended {
		h.state = state
	}
	h.mu.Unlock()

	span.SetAttributes(attribute.String(tracing.AttrInvocationState, state.String()))
	switch state {
	case StateFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case StateCancelled:
		span.AddEvent(tracing.EventInvocationAbandoned)
		span.SetStatus(codes.Unset, "")
	default:
		span.SetStatus(codes.Ok, "")
	}

	event := Event{ID: id, Command: h.cfg.Command, Target: target, State: state, Err: err, Duration: elapsed}
	switch state {
	case StateFailed:
		log.ErrorErr(log.CatBridge, "Invocation failed", err, "id", id, "command", h.cfg.Command, "target", target)
		h.publish(pubsub.FailedEvent, event)
	case StateCancelled:
		log.Info(log.CatBridge, "Invocation abandoned", "id", id, "command", h.cfg.Command, "target", target)
		h.publish(pubsub.AbandonedEvent, event)
	default:
		log.Debug(log.CatBridge, "Invocation completed", "id", id, "command", h.cfg.Command, "target", target, "elapsed", elapsed)
		h.publish(pubsub.CompletedEvent, event)
	}

	if h.cfg.Journal != nil {
		rec := event.Record()
		rec.StartedAt = time.Now().Add(-elapsed)
		if jerr := h.cfg.Journal.RecordInvocation(context.WithoutCancel(ctx), rec); jerr != nil {
			log.ErrorErr(log.CatBridge, "Failed to journal invocation", jerr, "id", id)
		}
	}
}

func (h *Handler[T]) publish(eventType pubsub.EventType, event Event) {
	if h.cfg.Events != nil {
		h.cfg.Events.Publish(eventType, event)
	}
}

// Cancel fires the handler's cancellation signal. It is safe to call from any
// goroutine, at any time, including concurrently with Invoke.
func (h *Handler[T]) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancelRequested = true
	h.mu.Unlock()

	log.Info(log.CatBridge, "Cancellation requested", "command", h.cfg.Command)
	if cancel != nil {
		cancel()
	}
}

// Cancelled reports whether Cancel has been called.
func (h *Handler[T]) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelRequested
}

// End releases the cancellation signal. It is idempotent and safe to call
// without a prior Begin.
func (h *Handler[T]) End() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ended {
		return
	}
	h.ended = true
	h.state = StateTornDown
	if h.cancel != nil {
		h.cancel()
	}
	log.Debug(log.CatBridge, "Handler ended", "command", h.cfg.Command)
}

// State returns the handler's current lifecycle state.
func (h *Handler[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
