package retry

import (
	"time"
)

const (
	// DefaultAttempts and DefaultDelay match the connection retry defaults of the CLI.
	DefaultAttempts = 12
	DefaultDelay    = 5 * time.Second
)

// KindSet is an immutable set of error kinds.
type KindSet uint8

// Kinds builds a set from the given kinds.
func Kinds(kinds ...Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	return s&(1<<k) != 0
}

// Network is the default retryable set for calls that only race with transport failures.
var Network = Kinds(KindTransient)

// Cluster additionally retries Kubernetes API errors, for create/patch calls that
// race with eventual consistency.
var Cluster = Kinds(KindTransient, KindClusterAPI)

// Policy describes how one call site retries. Policies are values; derive new ones
// with the With* helpers rather than mutating shared state.
type Policy struct {
	MaxAttempts   int
	Delay         time.Duration
	Retryable     KindSet
	OperationName string
}

// NewPolicy returns a policy with the given bounds. attempts below one become one.
func NewPolicy(operation string, attempts int, delay time.Duration, retryable KindSet) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{
		MaxAttempts:   attempts,
		Delay:         delay,
		Retryable:     retryable,
		OperationName: operation,
	}
}

// WithName returns a copy of p for a different operation.
func (p Policy) WithName(operation string) Policy {
	p.OperationName = operation
	return p
}

// WithRetryable returns a copy of p retrying the given kinds.
func (p Policy) WithRetryable(retryable KindSet) Policy {
	p.Retryable = retryable
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
