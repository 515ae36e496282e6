package wire

import (
	"context"
	"time"

	"github.com/joeycumines/logiface"
)

type config struct {
	ctx     context.Context
	timeout time.Duration
	sites   bool
	logger  *logiface.Logger[logiface.Event]
}

func defaultConfig() config {
	return config{
		ctx:   context.Background(),
		sites: true,
	}
}

// An Option configures an [EventLoop].
type Option func(*config)

// WithTimeout sets the drain timeout used by [Scope]. The default, zero,
// drains without a deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithContext sets the parent of the loop's context. Canceling it reaches
// every wire blocked on [Task.Context].
func WithContext(ctx context.Context) Option {
	if ctx == nil {
		panic("wire: WithContext(nil)")
	}
	return func(c *config) {
		c.ctx = ctx
	}
}

// WithLogger attaches a structured logger to the loop. The loop logs task
// admissions, continuations, failures, and teardown. Without a logger the
// loop logs nothing.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCallSites controls admission call-site capture, which annotates task
// failures with where [EventLoop.Start] was called. Enabled by default;
// disable it to avoid the capture cost on hot admission paths.
func WithCallSites(enabled bool) Option {
	return func(c *config) {
		c.sites = enabled
	}
}

// loopLogger wraps the optional structured logger. All methods are no-ops
// when no logger is attached.
type loopLogger struct {
	l *logiface.Logger[logiface.Event]
}

func (g loopLogger) admitted(w Wire, nargs int) {
	if b := g.l.Debug(); b.Enabled() {
		b.Str("wire", wireName(w)).Int("args", nargs).Log("task admitted")
	}
}

func (g loopLogger) continued(w Wire) {
	if b := g.l.Trace(); b.Enabled() {
		b.Str("wire", wireName(w)).Log("continuation re-admitted")
	}
}

func (g loopLogger) failed(w Wire, err error) {
	if b := g.l.Err(); b.Enabled() {
		b.Str("wire", wireName(w)).Err(err).Log("task failed")
	}
}

func (g loopLogger) deadline(pending int) {
	if b := g.l.Debug(); b.Enabled() {
		b.Int("pending", pending).Log("deadline reached")
	}
}

func (g loopLogger) closed(canceled int) {
	if b := g.l.Debug(); b.Enabled() {
		b.Int("canceled", canceled).Log("event loop closed")
	}
}

func (g loopLogger) closedStart(w Wire) {
	if b := g.l.Warning(); b.Enabled() {
		b.Str("wire", wireName(w)).Log("start on closed event loop ignored")
	}
}
