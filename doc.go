// Package wire is a continuation-style task scheduler.
//
// A [Wire] is a unit of asynchronous work that decides, at the moment it
// finishes, what runs next and with what arguments. An [EventLoop] owns a
// set of concurrently running wires, waits for the first to finish,
// interprets its outcome, and re-admits continuations, under an optional
// overall deadline. A failure raised anywhere in a task is delivered to
// exactly one [Handler] exactly once.
//
// # Outcomes
//
// A wire yields an [Outcome]: empty (the task ends), or a continuation
// carrying an optional next wire plus forwarded values. The next wire is
// admitted as a new concurrent task sharing the same handler; the values
// feed whatever runs next in the enclosing combinator chain. The loose
// [Func] adapter also decodes values from untyped integrations, turning
// anything unrecognizable into a [ProtocolError] instead of dropping it.
//
// # Composition
//
// Wires compose without touching the loop's internals, through the one
// primitive the loop exposes to running wires ([Task.Start]):
//
//   - [Sequence] runs one wire and then another, composing timing, not
//     data.
//   - [ApplyM] builds a pipeline: each stage's forwarded values become the
//     next stage's arguments.
//   - [Repeat] and [RepeatM] run a wire a bounded number of times;
//     [Forever] and [ForeverM] run it unboundedly, relying on the loop's
//     deadline or teardown to stop.
//
// The intended use case is a server that maintains several connections and
// subprocesses and wants to do task management as part of its callbacks.
// Pollers and process runners are ordinary wires; the core treats them
// opaquely and imposes nothing on them beyond the Outcome contract.
//
// # Running
//
// The usual entry point is [Scope]:
//
//	err := wire.Scope(func(ev *wire.EventLoop) error {
//		ev.Start(wire.Repeat(tick, 4), nil)
//		return nil
//	}, wire.WithTimeout(time.Second))
//
// On clean return Scope drains the loop; on the way out, whatever is still
// running is canceled through the loop's context. Wires that block should
// select on [Task.Context] so teardown can reach them.
//
// Tasks really are concurrent: each admission runs on its own goroutine,
// and the loop is the single point that serializes completion handling.
// Mutable wire state, like the counter inside a [Repeat], is safe exactly
// because a given instance has only one invocation in flight at a time.
package wire
