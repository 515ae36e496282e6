package wire

import (
	"context"
	"time"
)

// Call adapts fn to a [Wire] that invokes fn with the bound args, ignoring
// anything forwarded by the caller, and yields a continuation outcome with
// no next wire and the normalized result as forwarded values.
//
// Normalization guarantees that every downstream combinator receives a list
// it can splat as arguments: a nil result becomes no values, a []any is
// used as is, and anything else becomes a single-element list.
// Normalization itself cannot fail; an error from fn fails the task.
func Call(fn func(ctx context.Context, args ...any) (any, error), args ...any) Wire {
	return func(t *Task, _ ...any) (Outcome, error) {
		ret, err := fn(t.Context(), args...)
		if err != nil {
			return Outcome{}, err
		}
		return t.Forward(normalize(ret)...), nil
	}
}

func normalize(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Do returns a [Wire] that calls f, and then ends.
func Do(f func()) Wire {
	return func(t *Task, _ ...any) (Outcome, error) {
		f()
		return t.End(), nil
	}
}

// Nop returns a [Wire] that ends without doing anything.
func Nop() Wire {
	return func(t *Task, _ ...any) (Outcome, error) {
		return t.End(), nil
	}
}

// Never returns a [Wire] that only ends when the loop is torn down or its
// context is canceled.
func Never() Wire {
	return func(t *Task, _ ...any) (Outcome, error) {
		<-t.Context().Done()
		return t.End(), nil
	}
}

// Sleep returns a [Wire] that ends after d has elapsed, or fails with the
// context error if the loop is torn down first.
func Sleep(d time.Duration) Wire {
	return func(t *Task, _ ...any) (Outcome, error) {
		tm := time.NewTimer(d)
		defer tm.Stop()
		select {
		case <-tm.C:
			return t.End(), nil
		case <-t.Context().Done():
			return Outcome{}, t.Context().Err()
		}
	}
}
