package poll

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// fakeClock advances whenever one of its timers is started.
type fakeClock struct {
	now   time.Time
	waits []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTimer() backoff.Timer { return &clockTimer{clock: c} }

type clockTimer struct {
	clock *fakeClock
	c     chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.clock.waits = append(t.clock.waits, d)
	t.clock.now = t.clock.now.Add(d)
	t.c = make(chan time.Time, 1)
	t.c <- t.clock.now
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.c }

type countingObserver map[string]int

func (o countingObserver) ObservePoll(_, outcome string) { o[outcome]++ }

func newTestPoller(clock *fakeClock) *Poller {
	return &Poller{
		Resource: "postgresql/pg1",
		Policy:   retry.NewPolicy("get namespaced custom object", 3, time.Second, retry.Network),
		Interval: DefaultInterval,
		Clock:    clock,
		NewTimer: clock.NewTimer,
	}
}

func sequence(states ...State) (Fetch, *int) {
	calls := 0
	return func(context.Context) (State, error) {
		s := states[len(states)-1]
		if calls < len(states) {
			s = states[calls]
		}
		calls++
		return s, nil
	}, &calls
}

func TestIsReady(t *testing.T) {
	assert.True(t, IsReady(State{DesiredGeneration: 3, ObservedGeneration: 3, State: "Ready"}))
	assert.False(t, IsReady(State{DesiredGeneration: 3, ObservedGeneration: 2, State: "Ready"}))
	assert.False(t, IsReady(State{DesiredGeneration: 3, ObservedGeneration: 3, State: "Failed"}))
	assert.True(t, IsReady(State{DesiredGeneration: 1, ObservedGeneration: 1, State: "READY"}))
	assert.True(t, IsFailed(State{State: "Failed"}))
}

func TestUntilReadySleepsBeforeEachFetch(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	obs := countingObserver{}
	p := newTestPoller(clock)
	p.Observer = obs
	fetch, calls := sequence(
		State{DesiredGeneration: 2, ObservedGeneration: 1, State: "Ready"},
		State{DesiredGeneration: 2, ObservedGeneration: 2, State: "Updating"},
		State{DesiredGeneration: 2, ObservedGeneration: 2, State: "Ready"},
	)

	s, err := p.UntilReady(context.Background(), fetch)

	require.NoError(t, err)
	assert.True(t, IsReady(s))
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.waits)
	assert.Equal(t, clock.now, s.LastPoll)
	assert.Equal(t, 2, obs[OutcomePending])
	assert.Equal(t, 1, obs[OutcomeDone])
}

func TestUntilReadyStopsOnFailedState(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fetch, calls := sequence(State{State: "Creating"}, State{State: "Failed"})

	_, err := newTestPoller(clock).UntilReady(context.Background(), fetch)

	assert.ErrorIs(t, err, ErrFailed)
	assert.Equal(t, 2, *calls)
}

func TestUntilReadyReportsProgressOnElapsedCadence(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock)
	p.ProgressEvery = DefaultProgressEvery
	var reported []time.Duration
	p.OnProgress = func(elapsed time.Duration, _ State) { reported = append(reported, elapsed) }

	pending := make([]State, 130)
	for i := range pending {
		pending[i] = State{DesiredGeneration: 1, State: "Creating"}
	}
	fetch, calls := sequence(append(pending, State{DesiredGeneration: 1, ObservedGeneration: 1, State: "Ready"})...)

	_, err := p.UntilReady(context.Background(), fetch)

	require.NoError(t, err)
	assert.Equal(t, 131, *calls)
	assert.Equal(t, []time.Duration{5 * time.Minute, 10 * time.Minute}, reported)
}

func TestUntilReadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetch, calls := sequence(State{State: "Creating"})

	p := &Poller{Interval: time.Hour}
	_, err := p.UntilReady(ctx, fetch)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, *calls)
}

func TestUntilReadyPropagatesFetchError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock)
	p.Executor = &retry.Executor{NewTimer: clock.NewTimer}
	calls := 0
	_, err := p.UntilReady(context.Background(), func(context.Context) (State, error) {
		calls++
		return State{}, retry.Mark(retry.KindTransient, assert.AnError)
	})

	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}

func TestBoundedCountsEveryAttempt(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock)
	p.Interval = ExportInterval
	fetch, calls := sequence(State{State: ""}, State{State: "Running"})

	_, err := p.Bounded(context.Background(), ExportAttempts, fetch, StateIs("Completed"))

	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, ExportAttempts, *calls)
	assert.Len(t, clock.waits, ExportAttempts-1)
	for _, w := range clock.waits {
		assert.Equal(t, ExportInterval, w)
	}
}

func TestBoundedReturnsOnCondition(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock)
	fetch, calls := sequence(State{}, State{State: "Running"}, State{State: "Completed"})

	s, err := p.Bounded(context.Background(), ExportAttempts, fetch, StateIs("Completed"))

	require.NoError(t, err)
	assert.Equal(t, "Completed", s.State)
	assert.Equal(t, 3, *calls)
}

func TestBoundedStopsOnFailedTask(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock)
	fetch, calls := sequence(State{State: "Running"}, State{State: "Failed"}, State{State: "Completed"})

	s, err := p.Bounded(context.Background(), ExportAttempts, fetch, Reaches("Completed"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Equal(t, "Failed", s.State)
	assert.Equal(t, 2, *calls)
}

func TestBackupBackOffDoublesToCap(t *testing.T) {
	b := NewBackupBackOff(&fakeClock{now: time.Unix(0, 0)})
	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second,
	}, got)
}

func TestUntilJobFinished(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := newTestPoller(clock)
	states := []JobState{JobPending, JobActive, JobActive, JobPending, JobActive, JobDone}
	calls := 0
	state, err := p.UntilJobFinished(context.Background(), func(context.Context) (JobState, error) {
		s := states[calls]
		calls++
		return s, nil
	})

	require.NoError(t, err)
	assert.Equal(t, JobDone, state)
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second,
	}, clock.waits)

	// The schedule restarts on every call.
	clock.waits = nil
	calls = 0
	states = []JobState{JobFailed}
	state, err = p.UntilJobFinished(context.Background(), func(context.Context) (JobState, error) {
		s := states[calls]
		calls++
		return s, nil
	})
	require.NoError(t, err)
	assert.Equal(t, JobFailed, state)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.waits)
}

func TestParseJobState(t *testing.T) {
	assert.Equal(t, JobPending, ParseJobState(0))
	assert.Equal(t, JobActive, ParseJobState(1))
	assert.Equal(t, JobDone, ParseJobState(2))
	assert.Equal(t, JobFailed, ParseJobState(3))
	assert.Equal(t, JobUnknown, ParseJobState(9))
	assert.Equal(t, "Unknown", ParseJobState(-1).String())
	assert.True(t, JobUnknown.Terminal())
	assert.False(t, JobActive.Terminal())
}

func TestSettleWaitsOutWindowWhenStillReady(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := newTestPoller(clock)
	fetch, calls := sequence(State{State: "Ready"})

	require.NoError(t, p.Settle(context.Background(), clock.now, fetch))

	assert.Equal(t, []time.Duration{
		5 * time.Second, 5 * time.Second, 2500 * time.Millisecond, 2500 * time.Millisecond,
	}, clock.waits)
	assert.Equal(t, 5, *calls)
}

func TestSettleWaitsForReadyAgain(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := newTestPoller(clock)
	fetch, calls := sequence(
		State{State: "Updating"},
		State{State: "Updating"},
		State{State: "Updating"},
		State{State: "Ready"},
	)

	require.NoError(t, p.Settle(context.Background(), clock.now, fetch))

	assert.Equal(t, []time.Duration{2500 * time.Millisecond, 5 * time.Second, 10 * time.Second}, clock.waits)
	assert.Equal(t, 4, *calls)
}

func TestSettleStopsWhenInstanceGone(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := newTestPoller(clock)
	err := p.Settle(context.Background(), clock.now, func(context.Context) (State, error) {
		return State{}, retry.ErrNotFound
	})
	require.NoError(t, err)
	assert.Empty(t, clock.waits)
}
