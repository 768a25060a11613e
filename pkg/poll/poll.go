package poll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultProgressEvery = 5 * time.Minute
	ExportAttempts       = 12
	ExportInterval       = 20 * time.Second
)

// Poll outcomes reported to an Observer.
const (
	OutcomePending = "pending"
	OutcomeDone    = "done"
	OutcomeError   = "error"
)

// Observer receives one call per poll iteration.
type Observer interface {
	ObservePoll(resource, outcome string)
}

// Fetch returns the current observation of a resource.
type Fetch func(ctx context.Context) (State, error)

// Poller repeatedly fetches a resource's state until a condition holds. Every fetch
// goes through Executor with Policy.
type Poller struct {
	Resource      string
	Executor      *retry.Executor
	Policy        retry.Policy
	Interval      time.Duration
	ProgressEvery time.Duration
	// OnProgress is called every ProgressEvery of elapsed time.
	OnProgress func(elapsed time.Duration, s State)
	Logger     *zap.Logger
	Observer   Observer

	Clock    backoff.Clock
	NewTimer func() backoff.Timer
}

// UntilReady blocks until the resource is ready or failed. There is no attempt cap;
// cancel ctx to stop waiting.
func (p *Poller) UntilReady(ctx context.Context, fetch Fetch) (State, error) {
	return p.UntilCondition(ctx, fetch, Ready)
}

// UntilCondition sleeps Interval, fetches, and evaluates cond until it reports done.
func (p *Poller) UntilCondition(ctx context.Context, fetch Fetch, cond Condition) (State, error) {
	start := p.clock().Now()
	nextProgress := p.ProgressEvery
	var last State
	for iteration := 1; ; iteration++ {
		if err := p.sleep(ctx, p.interval()); err != nil {
			return last, err
		}
		s, done, err := p.observe(ctx, fetch, cond)
		last = s
		if done || err != nil {
			return s, err
		}

		elapsed := s.LastPoll.Sub(start)
		p.logger().Debug("waiting for resource",
			zap.String("resource", p.Resource),
			zap.Int("iteration", iteration),
			zap.String("state", s.State),
			zap.Int64("generation", s.DesiredGeneration),
			zap.Int64("observedGeneration", s.ObservedGeneration),
			zap.Duration("elapsed", elapsed))
		if p.ProgressEvery > 0 && elapsed >= nextProgress {
			for elapsed >= nextProgress {
				nextProgress += p.ProgressEvery
			}
			if p.OnProgress != nil {
				p.OnProgress(elapsed, s)
			}
		}
	}
}

// Bounded fetches at most attempts times, sleeping Interval between fetches, and
// returns ErrNotReady once the cap is reached. Every fetch counts toward the cap
// whatever state it observed.
func (p *Poller) Bounded(ctx context.Context, attempts int, fetch Fetch, cond Condition) (State, error) {
	var last State
	for attempt := 1; attempt <= attempts; attempt++ {
		s, done, err := p.observe(ctx, fetch, cond)
		last = s
		if done || err != nil {
			return s, err
		}
		p.logger().Debug("resource not finished",
			zap.String("resource", p.Resource),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", attempts),
			zap.String("state", s.State))
		if attempt == attempts {
			break
		}
		if err := p.sleep(ctx, p.interval()); err != nil {
			return last, err
		}
	}
	return last, errors.Wrapf(ErrNotReady, "%s after %d attempts", p.Resource, attempts)
}

func (p *Poller) observe(ctx context.Context, fetch Fetch, cond Condition) (State, bool, error) {
	s, err := retry.Do(ctx, p.Executor, p.Policy, func(ctx context.Context) (State, error) {
		return fetch(ctx)
	})
	if err != nil {
		p.report(OutcomeError)
		return s, false, err
	}
	s.LastPoll = p.clock().Now()
	done, err := cond(s)
	switch {
	case err != nil:
		p.report(OutcomeError)
	case done:
		p.report(OutcomeDone)
	default:
		p.report(OutcomePending)
	}
	return s, done, err
}

func (p *Poller) report(outcome string) {
	if p.Observer != nil {
		p.Observer.ObservePoll(p.Resource, outcome)
	}
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func (p *Poller) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *Poller) clock() backoff.Clock {
	if p.Clock == nil {
		return backoff.SystemClock
	}
	return p.Clock
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	var t backoff.Timer = &wallTimer{}
	if p.NewTimer != nil {
		t = p.NewTimer()
	}
	t.Start(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

type wallTimer struct {
	timer *time.Timer
}

func (t *wallTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *wallTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *wallTimer) C() <-chan time.Time { return t.timer.C }
