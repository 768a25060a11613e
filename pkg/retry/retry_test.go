package retry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	waits *[]time.Duration
	c     chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	*t.waits = append(*t.waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

type countingObserver map[string]int

func (o countingObserver) ObserveAttempt(_, outcome string) { o[outcome]++ }

func newTestExecutor(waits *[]time.Duration) (*Executor, *observer.ObservedLogs, countingObserver) {
	core, logs := observer.New(zap.InfoLevel)
	obs := countingObserver{}
	ex := NewExecutor(zap.New(core), obs)
	ex.NewTimer = func() backoff.Timer { return &fakeTimer{waits: waits} }
	return ex, logs, obs
}

func TestRunInvokesExactlyMaxAttempts(t *testing.T) {
	var waits []time.Duration
	ex, logs, obs := newTestExecutor(&waits)
	policy := NewPolicy("get namespaced custom object", 4, 5*time.Second, Network)

	calls := 0
	cause := Mark(KindTransient, errors.New("connection refused"))
	err := ex.Run(context.Background(), policy, func(context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 4 attempts")
	assert.Equal(t, 3, logs.FilterMessage("retrying operation").Len())
	assert.Equal(t, 3, obs[OutcomeRetry])
	assert.Equal(t, 1, obs[OutcomeExhausted])
}

func TestRunStopsOnNonRetryableKind(t *testing.T) {
	var waits []time.Duration
	ex, _, obs := newTestExecutor(&waits)
	policy := NewPolicy("create secret", 12, 5*time.Second, Network)

	calls := 0
	invalid := Mark(KindValidation, errors.New("name too long"))
	err := ex.Run(context.Background(), policy, func(context.Context) error {
		calls++
		return invalid
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, invalid, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Empty(t, waits)
	assert.Equal(t, 1, obs[OutcomeFailed])
}

func TestRunUsesFixedDelay(t *testing.T) {
	var waits []time.Duration
	ex, _, _ := newTestExecutor(&waits)
	policy := NewPolicy("list", 5, 5*time.Second, Network)

	calls := 0
	err := ex.Run(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 5 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, waits)
}

func TestFirstAttemptSuccessNeverWaits(t *testing.T) {
	var waits []time.Duration
	ex, _, _ := newTestExecutor(&waits)

	v, err := Do(context.Background(), ex, NewPolicy("get", 3, time.Second, Network), func(context.Context) (string, error) {
		return "ready", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Empty(t, waits)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := (&Executor{}).Run(ctx, NewPolicy("get", 12, time.Hour, Network), func(context.Context) error {
		calls++
		return Mark(KindTransient, errors.New("timeout"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestFetchTriState(t *testing.T) {
	var waits []time.Duration
	ex, _, _ := newTestExecutor(&waits)
	policy := NewPolicy("backup delete", 3, time.Second, Network)

	found := Fetch(context.Background(), ex, policy, func(context.Context) (int, error) { return 7, nil })
	assert.True(t, found.Found())
	assert.Equal(t, 7, found.Value)

	missing := Fetch(context.Background(), ex, policy, func(context.Context) (int, error) { return 0, ErrNotFound })
	assert.True(t, missing.NotFound())
	assert.False(t, missing.Found())
	assert.Empty(t, waits, "not-found is a result, not a retry")

	broken := Fetch(context.Background(), ex, policy, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	assert.Equal(t, Failed, broken.Presence)
	assert.Error(t, broken.Err)
}

func TestPolicyAttemptsFloor(t *testing.T) {
	p := NewPolicy("x", 0, time.Second, Network)
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, "y", p.WithName("y").OperationName)
	assert.Equal(t, "x", p.OperationName)
	assert.True(t, p.WithRetryable(Cluster).Retryable.Has(KindClusterAPI))
	assert.False(t, p.Retryable.Has(KindClusterAPI))
}
