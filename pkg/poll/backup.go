package poll

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const (
	BackupInitialInterval = 5 * time.Second
	BackupMaxInterval     = 60 * time.Second

	// RestoreSettleWindow covers the pod health check interval plus the time the
	// controller needs to notice a restarted server.
	RestoreSettleWindow = 15 * time.Second
	restoreInitialDelay = 2500 * time.Millisecond
	restoreMaxDelay     = 10 * time.Second
	restoreSettleStep   = 5 * time.Second
)

// JobState is the progress of a backup or restore job on the controller.
type JobState int

const (
	JobPending JobState = iota
	JobActive
	JobDone
	JobFailed
	JobUnknown
)

// ParseJobState maps the controller's progress code.
func ParseJobState(code int) JobState {
	if code < int(JobPending) || code > int(JobFailed) {
		return JobUnknown
	}
	return JobState(code)
}

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "Pending"
	case JobActive:
		return "Active"
	case JobDone:
		return "Done"
	case JobFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether polling should stop.
func (s JobState) Terminal() bool {
	return s != JobPending && s != JobActive
}

// NewBackupBackOff returns the doubling schedule used for backup and restore jobs:
// 5s, 10s, 20s, 40s, then 60s forever. It never gives up on its own.
func NewBackupBackOff(clock backoff.Clock) *backoff.ExponentialBackOff {
	if clock == nil {
		clock = backoff.SystemClock
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     BackupInitialInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         BackupMaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return b
}

// UntilJobFinished waits for a backup or restore job to reach Done or Failed. The
// wait before each fetch doubles from 5s up to 60s and restarts on every call.
func (p *Poller) UntilJobFinished(ctx context.Context, fetch func(context.Context) (JobState, error)) (JobState, error) {
	schedule := NewBackupBackOff(p.clock())
	for {
		if err := p.sleep(ctx, schedule.NextBackOff()); err != nil {
			return JobUnknown, err
		}
		state, err := retry.Do(ctx, p.Executor, p.Policy, fetch)
		if err != nil {
			p.report(OutcomeError)
			return state, err
		}
		p.logger().Debug("job progress", zap.String("resource", p.Resource), zap.Stringer("state", state))
		if state.Terminal() {
			p.report(OutcomeDone)
			return state, nil
		}
		p.report(OutcomePending)
	}
}

// Settle runs after a restore reports Done. A fast restore can finish before the
// pods' health checks fail, so first wait until the instance leaves Ready or the
// settle window since start has passed, then wait until it is Ready again.
// fetch returning retry.ErrNotFound ends the wait.
func (p *Poller) Settle(ctx context.Context, start time.Time, fetch Fetch) error {
	delay := restoreInitialDelay
	for {
		res := retry.Fetch(ctx, p.Executor, p.Policy, fetch)
		if res.Err != nil && !res.NotFound() {
			return res.Err
		}
		if res.NotFound() {
			return nil
		}
		if !isReadyLabel(res.Value) {
			break
		}
		remaining := RestoreSettleWindow - p.clock().Now().Sub(start) - delay
		if remaining <= 0 {
			break
		}
		if remaining > restoreSettleStep {
			remaining = restoreSettleStep
		}
		if err := p.sleep(ctx, remaining); err != nil {
			return err
		}
	}
	for {
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		res := retry.Fetch(ctx, p.Executor, p.Policy, fetch)
		if res.Err != nil && !res.NotFound() {
			return res.Err
		}
		if res.NotFound() || isReadyLabel(res.Value) {
			return nil
		}
		if delay < restoreMaxDelay {
			delay *= 2
		}
	}
}

func isReadyLabel(s State) bool {
	return strings.EqualFold(s.State, StateReady)
}
