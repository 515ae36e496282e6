package wire

import (
	"fmt"
	"runtime/debug"
)

// A PanicError is the failure delivered to a task's handler when a wire
// panics. It carries the panic value and the stack at the point of the
// panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	var stack string
	if e.Stack != nil {
		stack = "\n\n" + string(e.Stack)
	}
	return fmt.Sprintf("wire: panic: %v%s", e.Value, stack)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// try calls f, converting a panic into a *PanicError.
// A wire must not call runtime.Goexit; that is reported as a failure too,
// since the task would otherwise never complete.
func try(f func() error) (err error) {
	var completed bool
	defer func() {
		if completed {
			return
		}
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
			return
		}
		panic("wire: wires do not support runtime.Goexit()")
	}()
	err = f()
	completed = true
	return
}
