package poll

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	StateReady          = "ready"
	StateFailed         = "failed"
	StateDuplicateError = "duplicateerror"
)

var (
	// ErrFailed is returned when a resource reports a terminal failed state.
	ErrFailed = errors.New("resource entered a failed state")
	// ErrNotReady is returned by Bounded once its attempts are used up.
	ErrNotReady = errors.New("not ready")
)

// State is one observation of a custom resource.
type State struct {
	DesiredGeneration  int64
	ObservedGeneration int64
	State              string
	LastPoll           time.Time
}

// IsReady holds when the controller has reconciled the current generation and
// reports ready.
func IsReady(s State) bool {
	return s.ObservedGeneration == s.DesiredGeneration && strings.ToLower(s.State) == StateReady
}

// IsFailed reports a terminal failure.
func IsFailed(s State) bool {
	return strings.ToLower(s.State) == StateFailed
}

// Condition decides whether polling is finished. A non-nil error ends polling too.
type Condition func(State) (bool, error)

// Ready is the condition used for data controllers, Postgres server groups and
// SQL managed instances.
func Ready(s State) (bool, error) {
	if IsReady(s) {
		return true, nil
	}
	if IsFailed(s) {
		return true, errors.Wrapf(ErrFailed, "state %q", s.State)
	}
	return false, nil
}

// StateIs matches a state label exactly, as the export task reports "Completed".
func StateIs(label string) Condition {
	return func(s State) (bool, error) {
		return s.State == label, nil
	}
}

// Reaches is StateIs for tasks that can also fail: a failed state ends polling
// with ErrFailed instead of waiting out the remaining attempts.
func Reaches(label string) Condition {
	return func(s State) (bool, error) {
		if IsFailed(s) {
			return true, errors.Wrapf(ErrFailed, "state %q", s.State)
		}
		return s.State == label, nil
	}
}
