package wire_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/b97tsk/wire"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepIncrementPipeline(t *testing.T) {
	// (sleep >> incr) * 4 increments the counter exactly 4 times.
	var count atomic.Int32
	incr := wire.Call(func(ctx context.Context, _ ...any) (any, error) {
		count.Add(1)
		return nil, nil
	})
	chain := wire.Sleep(time.Millisecond).Pipe(incr).Times(4)

	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(chain, nil)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), count.Load())
}

func TestUnhandledContractViolation(t *testing.T) {
	// A wire yielding a bare string, admitted without a handler, makes the
	// scope exit fail with the unhandled-failure type.
	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(wire.Func(func(tk *wire.Task, _ ...any) (any, error) {
			return "woops", nil
		}), nil)
		return nil
	})
	var uerr *wire.UnhandledError
	require.ErrorAs(t, err, &uerr)
	var perr *wire.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "woops", perr.Value)
}

func TestForeverStopsAtDeadline(t *testing.T) {
	var n atomic.Int32
	callee := wire.Sleep(time.Millisecond).Then(wire.Do(func() { n.Add(1) }))

	ev := wire.New()
	defer ev.Close()
	ev.Start(wire.Forever(callee), nil)

	require.NoError(t, ev.Run(200*time.Millisecond))
	assert.GreaterOrEqual(t, n.Load(), int32(2), "callee must have run multiple times")
	assert.GreaterOrEqual(t, ev.Pending(), 1, "the task must still be outstanding, not completed")

	ev.Close()
	assert.Equal(t, 0, ev.Pending(), "teardown must cancel stragglers")
}

func TestHandlerInvokedExactlyOnce(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	var got error
	handler := func(ev *wire.EventLoop, err error) error {
		calls++
		got = err
		return nil
	}

	ev := wire.New()
	defer ev.Close()
	ev.Start(wire.Func(func(tk *wire.Task, _ ...any) (any, error) {
		return nil, boom
	}), handler)
	ev.Start(wire.Repeat(wire.Nop(), 3), handler) // succeeds; handler must stay quiet

	require.NoError(t, ev.Run(0))
	require.Equal(t, 1, calls)
	assert.ErrorIs(t, got, boom)
}

func TestHandlerFailureChains(t *testing.T) {
	boom := errors.New("boom")
	exploded := errors.New("handler exploded")

	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(
			wire.Func(func(tk *wire.Task, _ ...any) (any, error) { return nil, boom }),
			func(ev *wire.EventLoop, err error) error { return exploded },
		)
		return nil
	})

	var herr *wire.HandlerError
	require.ErrorAs(t, err, &herr)
	assert.ErrorIs(t, err, exploded)
	assert.ErrorIs(t, err, boom, "the original failure must stay on the chain")
}

func TestPanicReachesHandler(t *testing.T) {
	var handled []error
	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(wire.Do(func() { panic("kaboom") }), func(ev *wire.EventLoop, err error) error {
			handled = append(handled, err)
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, handled, 1)

	var perr *wire.PanicError
	require.ErrorAs(t, handled[0], &perr)
	assert.Equal(t, "kaboom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestScopeErrorSkipsDrain(t *testing.T) {
	// Never() would hang an unbounded drain; an error from the scope body
	// must skip the drain, cancel the task, and propagate unmodified.
	sentinel := errors.New("setup failed")
	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(wire.Never(), nil)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestContinuationThreadsForwardedArguments(t *testing.T) {
	// A task returning (self, args+1) grows its argument list each round.
	var rounds []int
	var w wire.Wire
	w = func(tk *wire.Task, args ...any) (wire.Outcome, error) {
		rounds = append(rounds, len(args))
		if len(args) >= 3 {
			return tk.End(), nil
		}
		return tk.Continue(w, append(args, "world")...), nil
	}
	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(w, nil)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, rounds)
}

func TestLifecycleGuards(t *testing.T) {
	t.Run("StartAfterClose", func(t *testing.T) {
		ev := wire.New()
		ev.Close()
		ev.Start(wire.Nop(), nil)
		assert.Equal(t, 0, ev.Pending())
		assert.ErrorIs(t, ev.Run(0), wire.ErrClosed)
	})
	t.Run("NilWire", func(t *testing.T) {
		ev := wire.New()
		defer ev.Close()
		ev.Start(nil, nil)
		assert.Equal(t, 0, ev.Pending())
	})
	t.Run("ReentrantRun", func(t *testing.T) {
		ev := wire.New()
		defer ev.Close()
		var reentrant error
		ev.Start(
			wire.Func(func(tk *wire.Task, _ ...any) (any, error) { return nil, errors.New("boom") }),
			func(ev *wire.EventLoop, err error) error {
				reentrant = ev.Run(0) // handlers run on the loop's flow of control
				return nil
			},
		)
		require.NoError(t, ev.Run(0))
		assert.ErrorIs(t, reentrant, wire.ErrRunning)
	})
	t.Run("CloseIsIdempotent", func(t *testing.T) {
		ev := wire.New()
		ev.Close()
		ev.Close()
	})
}

func TestCallSiteAnnotation(t *testing.T) {
	boom := errors.New("boom")
	failing := wire.Func(func(tk *wire.Task, _ ...any) (any, error) {
		return nil, boom
	})

	t.Run("Captured", func(t *testing.T) {
		var got error
		err := wire.Scope(func(ev *wire.EventLoop) error {
			ev.Start(failing, func(ev *wire.EventLoop, err error) error {
				got = err
				return nil
			})
			return nil
		})
		require.NoError(t, err)

		var terr *wire.TaskError
		require.ErrorAs(t, got, &terr)
		assert.ErrorIs(t, got, boom)
		assert.Contains(t, terr.Error(), "TestCallSiteAnnotation",
			"the annotation must name the admitting function")
	})
	t.Run("Disabled", func(t *testing.T) {
		var got error
		err := wire.Scope(func(ev *wire.EventLoop) error {
			ev.Start(failing, func(ev *wire.EventLoop, err error) error {
				got = err
				return nil
			})
			return nil
		}, wire.WithCallSites(false))
		require.NoError(t, err)

		var terr *wire.TaskError
		assert.False(t, errors.As(got, &terr))
		assert.ErrorIs(t, got, boom)
	})
}

func TestCallSiteStableAcrossContinuations(t *testing.T) {
	// Re-admission keeps the original admission site; a long chain must
	// deliver a failure with exactly one annotation, not one per round.
	boom := errors.New("boom")
	rounds := 0
	var w wire.Wire
	w = func(tk *wire.Task, _ ...any) (wire.Outcome, error) {
		rounds++
		if rounds >= 50 {
			return wire.Outcome{}, boom
		}
		return tk.Continue(w), nil
	}

	var got error
	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(w, func(ev *wire.EventLoop, err error) error {
			got = err
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 50, rounds)

	var terr *wire.TaskError
	require.ErrorAs(t, got, &terr)
	assert.ErrorIs(t, got, boom)
	assert.Equal(t, 1, strings.Count(got.Error(), "started at:"))

	var inner *wire.TaskError
	assert.False(t, errors.As(terr.Unwrap(), &inner), "annotations must not nest")
}

func TestWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ev := wire.New(wire.WithContext(ctx))
	defer ev.Close()

	ev.Start(wire.Never(), nil)

	done := make(chan error, 1)
	go func() { done <- ev.Run(0) }()

	cancel() // canceling the parent reaches the run loop and every wire
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe parent context cancellation")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWithLogger(t *testing.T) {
	var buf syncBuffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelTrace),
	).Logger()

	err := wire.Scope(func(ev *wire.EventLoop) error {
		ev.Start(wire.Repeat(wire.Nop(), 2), nil)
		return nil
	}, wire.WithLogger(logger))
	require.NoError(t, err)

	logged := buf.String()
	assert.True(t, strings.Contains(logged, "task admitted"), "got logs: %s", logged)
	assert.True(t, strings.Contains(logged, "continuation re-admitted"), "got logs: %s", logged)
	assert.True(t, strings.Contains(logged, "event loop closed"), "got logs: %s", logged)
}
