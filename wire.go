package wire

import (
	"reflect"
	"runtime"
)

// A Wire is a composable unit of asynchronous work.
//
// A Wire is invoked with a [Task], the handle that binds the invocation to
// an [EventLoop] and to one error handler, and with whatever arguments were
// forwarded to it. It does its work, possibly blocking on timers, I/O, or
// nested wire invocations, and returns an [Outcome] telling the loop what
// runs next, or an error.
//
// Wires may be stateful; combinators like [Repeat] re-invoke the same
// instance in place. A single stateful instance must not be admitted twice
// concurrently. If concurrent reuse is needed, construct one instance per
// admission.
type Wire func(t *Task, args ...any) (Outcome, error)

const (
	outcomeEmpty = iota
	outcomeContinue
	outcomeInvalid
)

// An Outcome is what a [Wire] invocation yields.
//
// It is one of:
//   - empty: no continuation; the task ends cleanly. The zero Outcome.
//   - continuation: an optional next Wire plus forwarded values. A non-nil
//     next wire is admitted as a new concurrent task sharing the same error
//     handler. The forwarded values are passed as arguments to whatever runs
//     next in the combinator chain.
//   - invalid: a value that matched no recognized shape, decoded by [Func].
//     The loop reports it to the task's handler as a [ProtocolError].
//
// Outcomes are constructed with [Task.End], [Task.Continue] and
// [Task.Forward].
type Outcome struct {
	kind int
	next Wire
	args []any
	raw  any
}

// Empty reports whether o is the empty variant, a clean end. A
// continuation outcome is never empty, even one carrying no next wire
// and no forwarded values.
func (o Outcome) Empty() bool {
	return o.kind == outcomeEmpty
}

// Next returns the continuation wire, if any.
func (o Outcome) Next() Wire {
	return o.next
}

// Args returns the forwarded values, if any.
func (o Outcome) Args() []any {
	return o.args
}

// Func adapts a loosely typed function to a [Wire].
//
// The returned value is decoded into an [Outcome] as follows:
//   - nil: the task ends cleanly;
//   - a [Wire] (or a value of its underlying type): a continuation;
//   - an [Outcome]: used as is;
//   - a []any: forwarded values, no continuation;
//   - anything else: a contract violation, reported to the task's handler
//     as a [ProtocolError].
//
// Use Func at integration boundaries where the shape of the result is not
// known statically. Code with a statically known shape should return
// Outcomes directly.
func Func(f func(t *Task, args ...any) (any, error)) Wire {
	return func(t *Task, args ...any) (Outcome, error) {
		v, err := f(t, args...)
		if err != nil {
			return Outcome{}, err
		}
		return decode(v), nil
	}
}

func decode(v any) Outcome {
	switch v := v.(type) {
	case nil:
		return Outcome{}
	case Outcome:
		return v
	case Wire:
		return Outcome{kind: outcomeContinue, next: v}
	case func(t *Task, args ...any) (Outcome, error):
		return Outcome{kind: outcomeContinue, next: v}
	case []any:
		return Outcome{kind: outcomeContinue, args: v}
	default:
		return Outcome{kind: outcomeInvalid, raw: v}
	}
}

// wireName resolves the function name behind w, for error reporting.
func wireName(w Wire) string {
	if w == nil {
		return "<nil>"
	}
	if f := runtime.FuncForPC(reflect.ValueOf(w).Pointer()); f != nil {
		return f.Name()
	}
	return "<unknown>"
}
