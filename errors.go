package wire

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	// ErrClosed is returned by [EventLoop.Run] after the loop is closed.
	ErrClosed = errors.New("wire: event loop is closed")

	// ErrRunning is returned by [EventLoop.Run] when the loop is already
	// running.
	ErrRunning = errors.New("wire: event loop is already running")
)

// A ProtocolError reports a contract violation: a wire yielded something
// that is neither empty, nor a continuation wire, nor forwarded values.
type ProtocolError struct {
	Wire  string // name of the offending wire
	Value any    // the unrecognized value
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: %s yielded %v (%T), not a valid outcome", e.Wire, e.Value, e.Value)
}

// An UnhandledError escalates the failure of a task that was admitted
// without a handler. It is returned by [EventLoop.Run], ending the run.
type UnhandledError struct {
	Cause error
}

func (e *UnhandledError) Error() string {
	return "wire: unhandled task failure: " + e.Cause.Error()
}

func (e *UnhandledError) Unwrap() error {
	return e.Cause
}

// A HandlerError reports that a handler itself failed while processing a
// task failure. It is returned by [EventLoop.Run], ending the run; handler
// failures are never dropped.
type HandlerError struct {
	Cause error // the task failure being handled
	Err   error // the handler's own failure
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("wire: handler failed: %v (while handling: %v)", e.Err, e.Cause)
}

func (e *HandlerError) Unwrap() []error {
	return []error{e.Err, e.Cause}
}

// A TaskError annotates a task failure with the call site of the original
// admission. Continuations re-admitted by the loop keep the original site,
// so the annotation does not grow however long the task chain runs.
type TaskError struct {
	Cause error
	site  []uintptr
}

func (e *TaskError) Error() string {
	var b strings.Builder
	b.WriteString(e.Cause.Error())
	b.WriteString("\nstarted at:")
	frames := runtime.CallersFrames(e.site)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "\n\t%s\n\t\t%s:%d", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Site returns the frames of the original admission call site.
func (e *TaskError) Site() *runtime.Frames {
	return runtime.CallersFrames(e.site)
}

const callSiteDepth = 8

func captureSite(skip int) []uintptr {
	pcs := make([]uintptr, callSiteDepth)
	n := runtime.Callers(skip+1, pcs)
	return pcs[:n]
}
