package pump

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// driveAsync runs Drive on its own goroutine and returns a channel closed when
// it returns.
func driveAsync(p *Pump, ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Drive(ctx)
	}()
	return done
}

func waitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		require.FailNow(t, msg)
	}
}

func record(mu *sync.Mutex, got *[]int) func(state any) error {
	return func(state any) error {
		mu.Lock()
		defer mu.Unlock()
		*got = append(*got, state.(int))
		return nil
	}
}

func TestPost_ExecutesInSubmissionOrder(t *testing.T) {
	p := New()
	defer p.Dispose()

	var mu sync.Mutex
	var got []int
	cb := record(&mu, &got)

	// Half before Drive starts, half while it runs.
	for i := 0; i < 5; i++ {
		p.Post(cb, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := driveAsync(p, ctx)
	for i := 5; i < 10; i++ {
		p.Post(cb, i)
	}
	p.Post(func(any) error { cancel(); return nil }, nil)

	waitClosed(t, done, "Drive did not return")
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	require.Equal(t, 11, p.Stats().Executed)
}

func TestPost_OrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		before := rapid.IntRange(0, 40).Draw(rt, "before")
		during := rapid.IntRange(0, 40).Draw(rt, "during")
		producers := rapid.IntRange(1, 4).Draw(rt, "producers")

		p := New()
		defer p.Dispose()

		var mu sync.Mutex
		var got []int
		cb := record(&mu, &got)

		for i := 0; i < before; i++ {
			p.Post(cb, i)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := driveAsync(p, ctx)

		// Each producer posts a contiguous, increasing range; relative order
		// within a producer must survive.
		var wg sync.WaitGroup
		for w := 0; w < producers; w++ {
			wg.Add(1)
			go func(base int) {
				defer wg.Done()
				for i := 0; i < during; i++ {
					p.Post(cb, base+i)
				}
			}((w + 1) * 1000)
		}
		wg.Wait()
		p.Post(func(any) error { cancel(); return nil }, nil)
		<-done

		require.Len(rt, got, before+producers*during)
		for i := 0; i < before; i++ {
			require.Equal(rt, i, got[i])
		}
		last := map[int]int{}
		for _, v := range got[before:] {
			base := v / 1000
			prev, seen := last[base]
			if seen {
				require.Greater(rt, v, prev)
			}
			last[base] = v
		}
	})
}

func TestSend_ReturnsAfterExecution(t *testing.T) {
	p := New()
	defer p.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := driveAsync(p, ctx)

	executed := false
	err := p.Send(func(state any) error {
		executed = state.(bool)
		return nil
	}, true)
	require.NoError(t, err)
	require.True(t, executed)

	cancel()
	waitClosed(t, done, "Drive did not return after cancel")
}

func TestSend_ReturnsCallbackFailure(t *testing.T) {
	p := New()
	defer p.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := driveAsync(p, ctx)

	boom := errors.New("boom")
	err := p.Send(func(any) error { return boom }, nil)
	require.Same(t, boom, err)

	err = p.Send(func(any) error { panic("send panic") }, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "send panic")

	cancel()
	waitClosed(t, done, "Drive did not return after cancel")
	require.Equal(t, 2, p.Stats().Failed)
}

func TestPost_FailureDoesNotStopLoop(t *testing.T) {
	p := New()
	defer p.Dispose()

	var mu sync.Mutex
	var got []int
	p.Post(func(any) error { return errors.New("ignored") }, nil)
	p.Post(func(any) error { panic("also ignored") }, nil)
	p.Post(record(&mu, &got), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Drive(ctx)

	require.Equal(t, []int{1}, got)
	stats := p.Stats()
	require.Equal(t, 3, stats.Executed)
	require.Equal(t, 2, stats.Failed)
}

func TestDrive_CancelWithEmptyQueueReturnsPromptly(t *testing.T) {
	p := New()
	defer p.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	done := driveAsync(p, ctx)

	// Give the loop time to block on the empty queue.
	time.Sleep(10 * time.Millisecond)
	cancel()

	waitClosed(t, done, "Drive did not observe cancellation")
	require.Zero(t, p.Stats().Executed)
}

func TestDrive_CancelRunsQueuedItemsFirst(t *testing.T) {
	p := New()
	defer p.Dispose()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		p.Post(record(&mu, &got), i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Drive(ctx)

	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
	require.Zero(t, p.Len())
}

func TestDrive_WakesOnSubmissionFromOtherGoroutine(t *testing.T) {
	p := New()
	defer p.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := driveAsync(p, ctx)

	ran := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		p.Post(func(any) error {
			close(ran)
			return nil
		}, nil)
	}()

	waitClosed(t, ran, "posted callback never ran")
	cancel()
	waitClosed(t, done, "Drive did not return")
}

func TestDispose_ReleasesSendWaiters(t *testing.T) {
	p := New()

	const waiters = 4
	results := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			results <- p.Send(func(any) error { return nil }, nil)
		}()
	}

	require.Eventually(t, func() bool { return p.Len() == waiters }, 2*time.Second, time.Millisecond)
	p.Dispose()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-results:
			require.ErrorIs(t, err, ErrAbandoned)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "Send waiter left blocked after Dispose")
		}
	}
	require.Equal(t, waiters, p.Stats().Abandoned)
}

func TestSubmitAfterDispose(t *testing.T) {
	p := New()
	p.Dispose()

	called := false
	p.Post(func(any) error { called = true; return nil }, nil)
	require.Zero(t, p.Len())

	err := p.Send(func(any) error { called = true; return nil }, nil)
	require.ErrorIs(t, err, ErrAbandoned)
	require.False(t, called)
}

func TestMisusePanics(t *testing.T) {
	t.Run("drive twice", func(t *testing.T) {
		p := New()
		defer p.Dispose()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p.Drive(ctx)
		require.PanicsWithValue(t, "pump: Drive called twice", func() { p.Drive(ctx) })
	})

	t.Run("drive after dispose", func(t *testing.T) {
		p := New()
		p.Dispose()
		require.PanicsWithValue(t, "pump: Drive called after Dispose", func() {
			p.Drive(context.Background())
		})
	})

	t.Run("dispose twice", func(t *testing.T) {
		p := New()
		p.Dispose()
		require.PanicsWithValue(t, "pump: Dispose called twice", p.Dispose)
	})

	t.Run("nil callback", func(t *testing.T) {
		p := New()
		defer p.Dispose()
		require.Panics(t, func() { p.Post(nil, nil) })
	})
}
