package retry

import (
	"context"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Kind tags an error with how the executor should treat it.
type Kind uint8

const (
	// KindFatal is anything unexpected. Never retried.
	KindFatal Kind = iota
	// KindTransient covers connection failures, timeouts and 5xx/429 responses.
	KindTransient
	// KindClusterAPI is a Kubernetes API status error other than not-found.
	KindClusterAPI
	// KindNotFound is a negative result rather than a failure.
	KindNotFound
	// KindValidation is a local invariant failure surfaced to the user.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClusterAPI:
		return "cluster-api"
	case KindNotFound:
		return "not-found"
	case KindValidation:
		return "validation"
	default:
		return "fatal"
	}
}

var (
	// ErrNotFound is returned by operations that found nothing.
	ErrNotFound = errors.New("not found")
	// ErrRetriesExhausted wraps the last error once a policy runs out of attempts.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Mark tags err with kind. A nil err stays nil.
func Mark(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Classify reports the Kind of err. Explicit marks win over inferred kinds.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var marked *Error
	if errors.As(err, &marked) {
		return marked.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}

	var status apierrors.APIStatus
	if errors.As(err, &status) {
		switch {
		case apierrors.IsNotFound(err):
			return KindNotFound
		case apierrors.IsServerTimeout(err), apierrors.IsTimeout(err),
			apierrors.IsTooManyRequests(err), apierrors.IsServiceUnavailable(err),
			apierrors.IsInternalError(err):
			return KindTransient
		default:
			return KindClusterAPI
		}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(respErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindFatal
}

// StatusError builds a classified error from an HTTP status code.
func StatusError(code int, msg string) error {
	return Mark(classifyStatus(code), errors.Errorf("%s: %d %s", msg, code, http.StatusText(code)))
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
