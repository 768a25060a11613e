package retry

import (
	"context"
)

// Presence distinguishes a found value from a clean negative result.
type Presence int

const (
	Found Presence = iota
	NotFound
	Failed
)

func (p Presence) String() string {
	switch p {
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	default:
		return "failed"
	}
}

// Result is the tri-state outcome of Fetch.
type Result[T any] struct {
	Presence Presence
	Value    T
	Err      error
}

// Found reports whether a value was returned.
func (r Result[T]) Found() bool { return r.Presence == Found }

// NotFound reports whether the operation cleanly found nothing.
func (r Result[T]) NotFound() bool { return r.Presence == NotFound }

// Fetch runs op under p and folds a not-found outcome into Result instead of an
// error. Not-found is never retried unless p explicitly lists KindNotFound.
func Fetch[T any](ctx context.Context, e *Executor, p Policy, op func(context.Context) (T, error)) Result[T] {
	v, err := Do(ctx, e, p, op)
	switch {
	case err == nil:
		return Result[T]{Presence: Found, Value: v}
	case Classify(err) == KindNotFound:
		return Result[T]{Presence: NotFound, Err: err}
	default:
		return Result[T]{Presence: Failed, Err: err}
	}
}
