package wire

// invoke runs a and decodes its outcome on behalf of a combinator.
// A side continuation in the outcome is admitted concurrently, with the
// outcome's forwarded values as its arguments.
// An invalid outcome fails the whole task with a [ProtocolError] naming a.
func invoke(t *Task, a Wire, args []any) (Outcome, error) {
	out, err := a(t, args...)
	if err != nil {
		return Outcome{}, err
	}
	if out.kind == outcomeInvalid {
		return Outcome{}, &ProtocolError{Wire: wireName(a), Value: out.raw}
	}
	if out.next != nil {
		t.Start(out.next, out.args...)
	}
	return out, nil
}

// Sequence returns a [Wire] that runs a, then continues with b.
//
// Sequencing composes timing, not data: b is continued with no arguments,
// whatever a forwarded. Any continuation wire in a's outcome is admitted as
// an independent concurrent task. To feed a's forwarded values into b, use
// [ApplyM].
func Sequence(a, b Wire) Wire {
	return sequence(a, b, false)
}

// sequence is Sequence with a choice of forwarding mode. In repeat mode,
// b is continued with the same arguments a itself received, so that the
// same argument list threads through every iteration of [Repeat] and
// [Forever].
func sequence(a, b Wire, repeat bool) Wire {
	return func(t *Task, args ...any) (Outcome, error) {
		if _, err := invoke(t, a, args); err != nil {
			return Outcome{}, err
		}
		if repeat {
			return t.Continue(b, args...), nil
		}
		return t.Continue(b), nil
	}
}

// ApplyM returns a [Wire] that runs a, then continues with b, passing a's
// forwarded values as b's arguments. Each stage's output becomes the next
// stage's input, independent of any continuation wire a spawned
// concurrently.
func ApplyM(a, b Wire) Wire {
	return func(t *Task, args ...any) (Outcome, error) {
		out, err := invoke(t, a, args)
		if err != nil {
			return Outcome{}, err
		}
		return t.Continue(b, out.args...), nil
	}
}

type repeater struct {
	a    Wire
	n    int
	pipe bool
}

func (r *repeater) invoke(t *Task, args ...any) (Outcome, error) {
	r.n--
	if r.n < 0 {
		return t.Forward(args...), nil
	}
	if r.pipe {
		return ApplyM(r.a, r.invoke)(t, args...)
	}
	return sequence(r.a, r.invoke, true)(t, args...)
}

// Repeat returns a [Wire] that runs a n times, threading the same argument
// list through every iteration. n <= 0 means zero executions; the returned
// wire then just forwards its arguments.
//
// The counter lives in the returned instance and is shared across all of
// its re-invocations; do not admit one Repeat twice concurrently.
func Repeat(a Wire, n int) Wire {
	r := &repeater{a: a, n: n}
	return r.invoke
}

// RepeatM is [Repeat] with [ApplyM] forwarding: each iteration's forwarded
// values become the next iteration's arguments.
func RepeatM(a Wire, n int) Wire {
	r := &repeater{a: a, n: n, pipe: true}
	return r.invoke
}

// Forever returns a [Wire] that runs a over and over, threading the same
// argument list through every iteration. It never ends on its own;
// termination comes from the loop's deadline, from teardown, or from a
// itself blocking until canceled.
func Forever(a Wire) Wire {
	var f Wire
	f = func(t *Task, args ...any) (Outcome, error) {
		return sequence(a, f, true)(t, args...)
	}
	return f
}

// ForeverM is [Forever] with [ApplyM] forwarding.
func ForeverM(a Wire) Wire {
	var f Wire
	f = func(t *Task, args ...any) (Outcome, error) {
		return ApplyM(a, f)(t, args...)
	}
	return f
}

// Then is the method form of [Sequence].
func (a Wire) Then(b Wire) Wire {
	return Sequence(a, b)
}

// Pipe is the method form of [ApplyM].
func (a Wire) Pipe(b Wire) Wire {
	return ApplyM(a, b)
}

// Times is the method form of [Repeat].
func (a Wire) Times(n int) Wire {
	return Repeat(a, n)
}
