package wire

import (
	"context"
	"sync"
	"time"
)

const (
	stateIdle = iota
	stateRunning
	stateDraining
	stateClosed
)

// An EventLoop owns a set of concurrently running tasks, waits for the
// first of them to complete, interprets its outcome, and re-admits
// continuations, under an optional overall deadline.
//
// New tasks are admitted with [EventLoop.Start], or, from inside a running
// wire, with [Task.Start]. Completions are processed by [EventLoop.Run].
// The usual way to drive a loop is [Scope], which drains on clean return
// and always cancels whatever remains.
//
// An EventLoop must be created with [New].
type EventLoop struct {
	mu      sync.Mutex
	state   int
	tasks   map[*Task]struct{}
	done    chan *Task
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	sites   bool
	logger  loopLogger
}

// New creates an [EventLoop], configured by opts.
func New(opts ...Option) *EventLoop {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	ctx, cancel := context.WithCancel(cfg.ctx)
	return &EventLoop{
		tasks:   make(map[*Task]struct{}),
		done:    make(chan *Task),
		ctx:     ctx,
		cancel:  cancel,
		timeout: cfg.timeout,
		sites:   cfg.sites,
		logger:  loopLogger{cfg.logger},
	}
}

// Scope runs fn with a fresh loop. On clean return from fn, Scope drains
// the loop by running it with the configured timeout (see [WithTimeout];
// the default is unbounded) and returns the result. An error from fn skips
// the drain and is returned as is; a panic propagates. Either way, every
// task still outstanding is canceled on the way out.
func Scope(fn func(ev *EventLoop) error, opts ...Option) error {
	ev := New(opts...)
	defer ev.Close()
	if err := fn(ev); err != nil {
		return err
	}
	return ev.run(ev.timeout, stateDraining)
}

// Context returns the loop's context. It is canceled when the loop is
// closed. Wires observe it as [Task.Context].
func (ev *EventLoop) Context() context.Context {
	return ev.ctx
}

// Pending returns the number of tasks admitted and not yet completed.
func (ev *EventLoop) Pending() int {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return len(ev.tasks)
}

// Start admits w as a new concurrently running task bound to h.
//
// A nil w is a no-op. A nil h means a failure of this task ends the run
// with an [UnhandledError]. Unless disabled by [WithCallSites], the call
// site of Start is captured and annotates any failure of the task,
// including failures of continuations it later runs as; continuations
// never capture a fresh site.
//
// Start is safe for concurrent use. After [EventLoop.Close], Start is a
// no-op.
func (ev *EventLoop) Start(w Wire, h Handler) {
	var site []uintptr
	if ev.sites {
		site = captureSite(2)
	}
	ev.admit(w, h, site, nil)
}

func (ev *EventLoop) admit(w Wire, h Handler, site []uintptr, args []any) {
	if w == nil {
		return
	}
	t := &Task{loop: ev, wire: w, handler: h, site: site, args: args}
	ev.mu.Lock()
	if ev.state == stateClosed {
		ev.mu.Unlock()
		ev.logger.closedStart(w)
		return
	}
	ev.tasks[t] = struct{}{}
	ev.mu.Unlock()
	ev.logger.admitted(w, len(args))
	go t.exec()
}

func (ev *EventLoop) remove(t *Task) {
	ev.mu.Lock()
	delete(ev.tasks, t)
	ev.mu.Unlock()
}

// Run processes completions until no tasks remain or the deadline passes.
//
// A positive timeout is a wall-clock budget from the moment Run starts;
// timeout <= 0 means unbounded. Reaching the deadline ends the loop
// without failing pending tasks, deferring to teardown cancellation.
//
// For every completed task, exactly one of the following happens: its
// continuation wire is re-admitted (same handler, same admission site,
// with the outcome's forwarded values as arguments); or its handler is
// invoked with the failure; or, for an empty or forward-only outcome,
// nothing. One task's failure never aborts other tasks: Run only returns
// early when a handlerless task fails ([UnhandledError]) or a handler
// itself fails ([HandlerError]).
func (ev *EventLoop) Run(timeout time.Duration) error {
	return ev.run(timeout, stateRunning)
}

func (ev *EventLoop) run(timeout time.Duration, mode int) error {
	ev.mu.Lock()
	switch ev.state {
	case stateClosed:
		ev.mu.Unlock()
		return ErrClosed
	case stateRunning, stateDraining:
		ev.mu.Unlock()
		return ErrRunning
	}
	ev.state = mode
	ev.mu.Unlock()

	defer func() {
		ev.mu.Lock()
		if ev.state == mode {
			ev.state = stateIdle
		}
		ev.mu.Unlock()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		expired = tm.C
	}

	for ev.Pending() > 0 {
		select {
		case t := <-ev.done:
			ev.remove(t)
			if err := ev.settle(t); err != nil {
				return err
			}
		case <-expired:
			ev.logger.deadline(ev.Pending())
			return nil
		case <-ev.ctx.Done():
			return nil
		}
	}
	return nil
}

// settle interprets the outcome of a completed task.
func (ev *EventLoop) settle(t *Task) error {
	if t.err != nil {
		return ev.deliver(t, t.err)
	}
	out := t.outcome
	switch out.kind {
	case outcomeInvalid:
		return ev.deliver(t, &ProtocolError{Wire: wireName(t.wire), Value: out.raw})
	case outcomeContinue:
		if out.next != nil {
			ev.logger.continued(out.next)
			ev.admit(out.next, t.handler, t.site, out.args)
		}
	}
	return nil
}

// deliver hands a task failure to its handler, exactly once.
func (ev *EventLoop) deliver(t *Task, cause error) error {
	if t.site != nil {
		cause = &TaskError{Cause: cause, site: t.site}
	}
	ev.logger.failed(t.wire, cause)
	if t.handler == nil {
		return &UnhandledError{Cause: cause}
	}
	if err := t.handler(ev, cause); err != nil {
		return &HandlerError{Cause: cause, Err: err}
	}
	return nil
}

// Close tears the loop down: it cancels the loop context and clears the
// task set. Cancellation is a teardown action, not a wire failure, so no
// handler is invoked for it. Close is idempotent and safe for concurrent
// use.
func (ev *EventLoop) Close() {
	ev.mu.Lock()
	if ev.state == stateClosed {
		ev.mu.Unlock()
		return
	}
	ev.state = stateClosed
	n := len(ev.tasks)
	clear(ev.tasks)
	ev.mu.Unlock()
	ev.cancel()
	ev.logger.closed(n)
}

// A Handler consumes the failure of one task. It is invoked at most once
// per task, exactly when that task's invocation (or any wire run as part
// of the same task) fails. Returning a non-nil error ends the run with a
// [HandlerError] chaining both failures.
type Handler func(ev *EventLoop, err error) error

// A Task binds one running [Wire] invocation to an [EventLoop], one error
// handler, and the captured admission site. Tasks are created by admission
// and live until completion or teardown; wires receive their Task as the
// first argument and interact with the loop only through it.
type Task struct {
	loop    *EventLoop
	wire    Wire
	handler Handler
	site    []uintptr
	args    []any
	outcome Outcome
	err     error
}

func (t *Task) exec() {
	t.err = try(func() error {
		out, err := t.wire(t, t.args...)
		t.outcome = out
		return err
	})
	select {
	case t.loop.done <- t:
	case <-t.loop.ctx.Done():
		// Teardown; the completion is dropped.
	}
}

// Loop returns the [EventLoop] that admitted t.
func (t *Task) Loop() *EventLoop {
	return t.loop
}

// Context returns the loop's context. A blocking wire should select on it
// so that teardown cancellation can reach it.
func (t *Task) Context() context.Context {
	return t.loop.ctx
}

// Start admits w as a new concurrently running task sharing t's handler
// and admission site, invoked with args. This is the one primitive
// combinators use to spawn work; a nil w is a no-op.
func (t *Task) Start(w Wire, args ...any) {
	t.loop.admit(w, t.handler, t.site, args)
}

// End returns the empty [Outcome]: the task ends cleanly.
func (t *Task) End() Outcome {
	return Outcome{}
}

// Continue returns an [Outcome] that admits next as a new concurrent task
// carrying args. In a combinator chain the args also feed the next stage.
func (t *Task) Continue(next Wire, args ...any) Outcome {
	return Outcome{kind: outcomeContinue, next: next, args: args}
}

// Forward returns an [Outcome] that forwards args to the next stage of the
// enclosing combinator chain, with no continuation wire. At the top level
// of a task the values are dropped and the task ends cleanly.
func (t *Task) Forward(args ...any) Outcome {
	return Outcome{kind: outcomeContinue, args: args}
}
