package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/wikictl/internal/async"
	"github.com/zjrosen/wikictl/internal/pubsub"
	"github.com/zjrosen/wikictl/internal/tracing"
)

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) RecordInvocation(ctx context.Context, rec Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func step(ctx context.Context) *async.Future[struct{}] {
	return async.Delay(ctx, time.Millisecond)
}

// threeSuspensions awaits three timers in sequence and then yields value.
func threeSuspensions(value int) Operation[int] {
	return func(ctx context.Context, ex async.Executor) *async.Future[int] {
		return async.Then(ctx, ex, step(ctx), func(struct{}) *async.Future[int] {
			return async.Then(ctx, ex, step(ctx), func(struct{}) *async.Future[int] {
				return async.Map(ctx, ex, step(ctx), func(struct{}) (int, error) {
					return value, nil
				})
			})
		})
	}
}

func newHandler(t *testing.T, cfg Config) *Handler[int] {
	t.Helper()
	h := New[int](cfg)
	h.Begin(context.Background())
	t.Cleanup(h.End)
	return h
}

func TestInvoke_CompletesAfterThreeSuspensions(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	out, err := h.Invoke("record", threeSuspensions(42))
	require.NoError(t, err)
	require.False(t, out.Abandoned)
	require.Equal(t, 42, out.Value)
	require.Equal(t, 3, out.Steps, "one pump execution per suspension")
	require.NotEmpty(t, out.ID)
	require.Equal(t, StateCompleted, h.State())
}

func TestInvoke_SynchronousOperationNeedsNoSteps(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	out, err := h.Invoke("record", func(context.Context, async.Executor) *async.Future[int] {
		return async.Resolved(7)
	})
	require.NoError(t, err)
	require.Equal(t, 7, out.Value)
	require.Zero(t, out.Steps)
}

func TestInvoke_CancelWhileSuspendedIsAbandoned(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	reached := make(chan struct{})
	resumed := false
	op := func(ctx context.Context, ex async.Executor) *async.Future[int] {
		return async.Then(ctx, ex, step(ctx), func(struct{}) *async.Future[int] {
			close(reached)
			return async.Then(ctx, ex, async.Delay(ctx, time.Hour), func(struct{}) *async.Future[int] {
				resumed = true
				return async.Resolved(1)
			})
		})
	}

	go func() {
		<-reached
		h.Cancel()
	}()

	done := make(chan struct{})
	var (
		out Outcome[int]
		err error
	)
	go func() {
		defer close(done)
		out, err = h.Invoke("record", op)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Invoke did not return after Cancel")
	}

	require.NoError(t, err)
	require.True(t, out.Abandoned)
	require.Zero(t, out.Value)
	require.False(t, resumed)
	require.Equal(t, StateCancelled, h.State())
	require.True(t, h.Cancelled())
}

func TestInvoke_CancelWithUnresponsiveOperationIsAbandoned(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	// The returned future ignores ctx and never settles.
	op := func(context.Context, async.Executor) *async.Future[int] {
		time.AfterFunc(5*time.Millisecond, h.Cancel)
		return async.NewFuture[int]()
	}

	out, err := h.Invoke("record", op)
	require.NoError(t, err)
	require.True(t, out.Abandoned)
}

func TestInvoke_FailureAfterOneStepIsReturnedVerbatim(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	boom := errors.New("edit conflict")
	op := func(ctx context.Context, ex async.Executor) *async.Future[int] {
		return async.Then(ctx, ex, step(ctx), func(struct{}) *async.Future[int] {
			return async.Failed[int](boom)
		})
	}

	out, err := h.Invoke("record", op)
	require.Same(t, boom, err)
	require.False(t, out.Abandoned)
	require.Equal(t, 1, out.Steps)
	require.Equal(t, StateFailed, h.State())
}

func TestInvoke_OperationPanicsAndNilFuturesFail(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	_, err := h.Invoke("panics", func(context.Context, async.Executor) *async.Future[int] {
		panic("bad record")
	})
	var pe *async.PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "bad record", pe.Value)

	_, err = h.Invoke("nil", func(context.Context, async.Executor) *async.Future[int] {
		return nil
	})
	require.ErrorContains(t, err, "nil future")
}

func TestInvoke_AfterCancelDoesNotStartOperation(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})
	h.Cancel()

	called := false
	out, err := h.Invoke("record", func(context.Context, async.Executor) *async.Future[int] {
		called = true
		return async.Resolved(1)
	})
	require.NoError(t, err)
	require.True(t, out.Abandoned)
	require.False(t, called)
}

func TestCancelBeforeBegin(t *testing.T) {
	h := New[int](Config{})
	h.Cancel()
	h.Begin(context.Background())
	defer h.End()

	out, err := h.Invoke("record", threeSuspensions(1))
	require.NoError(t, err)
	require.True(t, out.Abandoned)
}

func TestInvoke_SequentialRecordsShareHandler(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	for i := 1; i <= 3; i++ {
		out, err := h.Invoke("record", threeSuspensions(i))
		require.NoError(t, err)
		require.Equal(t, i, out.Value)
	}
}

func TestInvoke_NotReentrant(t *testing.T) {
	h := newHandler(t, Config{Command: "test"})

	_, err := h.Invoke("outer", func(ctx context.Context, ex async.Executor) *async.Future[int] {
		_, _ = h.Invoke("inner", threeSuspensions(1))
		return async.Resolved(0)
	})
	require.ErrorContains(t, err, "not reentrant")
}

func TestLifecycleMisuse(t *testing.T) {
	t.Run("invoke before begin", func(t *testing.T) {
		h := New[int](Config{})
		require.PanicsWithValue(t, "bridge: Invoke called before Begin", func() {
			_, _ = h.Invoke("record", threeSuspensions(1))
		})
	})

	t.Run("begin twice", func(t *testing.T) {
		h := New[int](Config{})
		h.Begin(context.Background())
		defer h.End()
		require.PanicsWithValue(t, "bridge: Begin called twice", func() {
			h.Begin(context.Background())
		})
	})

	t.Run("invoke after end", func(t *testing.T) {
		h := New[int](Config{})
		h.Begin(context.Background())
		h.End()
		require.PanicsWithValue(t, "bridge: Invoke called after End", func() {
			_, _ = h.Invoke("record", threeSuspensions(1))
		})
	})

	t.Run("end is idempotent without begin", func(t *testing.T) {
		h := New[int](Config{})
		require.NotPanics(t, func() {
			h.End()
			h.End()
		})
		require.Equal(t, StateTornDown, h.State())
	})
}

func TestInvoke_PublishesLifecycleEvents(t *testing.T) {
	broker := pubsub.NewBrokerWithBuffer[Event](16)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	h := newHandler(t, Config{Command: "page get", Events: broker})
	out, err := h.Invoke("Main Page", threeSuspensions(1))
	require.NoError(t, err)

	started := <-events
	require.Equal(t, pubsub.StartedEvent, started.Type)
	require.Equal(t, out.ID, started.Payload.ID)
	require.Equal(t, "Main Page", started.Payload.Target)

	completed := <-events
	require.Equal(t, pubsub.CompletedEvent, completed.Type)
	require.Equal(t, StateCompleted, completed.Payload.State)
	require.Equal(t, "page get", completed.Payload.Command)
}

func TestInvoke_JournalsEveryOutcome(t *testing.T) {
	journal := &mockJournal{}
	boom := errors.New("boom")

	journal.On("RecordInvocation", mock.Anything, mock.MatchedBy(func(rec Record) bool {
		return rec.Target == "ok" && rec.Outcome == "completed" && rec.Error == ""
	})).Return(nil).Once()
	journal.On("RecordInvocation", mock.Anything, mock.MatchedBy(func(rec Record) bool {
		return rec.Target == "bad" && rec.Outcome == "failed" && rec.Error == "boom"
	})).Return(errors.New("disk full")).Once()

	h := newHandler(t, Config{Command: "test", Journal: journal})

	_, err := h.Invoke("ok", threeSuspensions(1))
	require.NoError(t, err)

	_, err = h.Invoke("bad", func(context.Context, async.Executor) *async.Future[int] {
		return async.Failed[int](boom)
	})
	require.Same(t, boom, err, "journal failures do not replace the operation's error")

	journal.AssertExpectations(t)
}

func TestInvoke_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	h := newHandler(t, Config{Command: "page get", Tracer: tp.Tracer("test")})

	_, err := h.Invoke("Main Page", threeSuspensions(1))
	require.NoError(t, err)
	_, err = h.Invoke("Missing", func(context.Context, async.Executor) *async.Future[int] {
		return async.Failed[int](errors.New("missingtitle"))
	})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	require.Equal(t, tracing.SpanPrefixInvocation+"page get", spans[0].Name())
	require.Equal(t, codes.Ok, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.String(tracing.AttrInvocationTarget, "Main Page"))
	require.Contains(t, spans[0].Attributes(), attribute.String(tracing.AttrInvocationState, "completed"))

	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "missingtitle", spans[1].Status().Description)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "torn_down", StateTornDown.String())
	require.Equal(t, "unknown", State(99).String())
}
