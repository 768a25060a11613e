package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Outcome labels reported to an Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

// Observer receives one call per attempt outcome.
type Observer interface {
	ObserveAttempt(operation, outcome string)
}

// Executor runs operations under a Policy. The zero value is usable.
type Executor struct {
	Logger   *zap.Logger
	Observer Observer
	// NewTimer overrides the wait timer; nil waits on the wall clock.
	NewTimer func() backoff.Timer
}

// NewExecutor returns an executor logging to logger.
func NewExecutor(logger *zap.Logger, observer Observer) *Executor {
	return &Executor{Logger: logger, Observer: observer}
}

func (e *Executor) logger() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) observe(operation, outcome string) {
	if e != nil && e.Observer != nil {
		e.Observer.ObserveAttempt(operation, outcome)
	}
}

func (e *Executor) timer() backoff.Timer {
	if e != nil && e.NewTimer != nil {
		return e.NewTimer()
	}
	return nil
}

// Run invokes op until it succeeds, fails with a kind outside p.Retryable, or p runs
// out of attempts. Waits between attempts are exactly p.Delay.
func (e *Executor) Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	attempt := 0
	var exhausted bool
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			e.observe(p.OperationName, OutcomeSuccess)
			return nil
		}
		if !p.Retryable.Has(Classify(err)) {
			e.observe(p.OperationName, OutcomeFailed)
			return backoff.Permanent(err)
		}
		if attempt >= p.attempts() {
			exhausted = true
			e.observe(p.OperationName, OutcomeExhausted)
			return err
		}
		e.observe(p.OperationName, OutcomeRetry)
		return err
	}
	notify := func(err error, wait time.Duration) {
		e.logger().Info("retrying operation",
			zap.String("operation", p.OperationName),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", p.attempts()),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ConstantBackOff{Interval: p.Delay}, uint64(p.attempts()-1)),
		ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, e.timer())
	if err == nil {
		return nil
	}
	if exhausted {
		return &exhaustedError{operation: p.OperationName, attempts: attempt, err: err}
	}
	return err
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, p Policy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type exhaustedError struct {
	operation string
	attempts  int
	err       error
}

func (e *exhaustedError) Error() string {
	return errors.Wrapf(e.err, "%s failed after %d attempts", e.operation, e.attempts).Error()
}

func (e *exhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.err} }
