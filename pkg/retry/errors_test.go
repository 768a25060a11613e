package retry

import (
	"context"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestClassify(t *testing.T) {
	gr := schema.GroupResource{Group: "arcdata.microsoft.com", Resource: "postgresqls"}
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"marked wins", Mark(KindValidation, apierrors.NewNotFound(gr, "pg1")), KindValidation},
		{"sentinel not found", errors.Wrap(ErrNotFound, "backup"), KindNotFound},
		{"api not found", apierrors.NewNotFound(gr, "pg1"), KindNotFound},
		{"api conflict", apierrors.NewConflict(gr, "pg1", errors.New("stale")), KindClusterAPI},
		{"api forbidden", apierrors.NewForbidden(gr, "pg1", errors.New("rbac")), KindClusterAPI},
		{"api unavailable", apierrors.NewServiceUnavailable("down"), KindTransient},
		{"api timeout", apierrors.NewServerTimeout(gr, "get", 1), KindTransient},
		{"net error", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindTransient},
		{"conn reset", errors.Wrap(syscall.ECONNRESET, "read"), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"azure 503", &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}, KindTransient},
		{"azure 404", &azcore.ResponseError{StatusCode: http.StatusNotFound}, KindNotFound},
		{"azure 400", &azcore.ResponseError{StatusCode: http.StatusBadRequest}, KindFatal},
		{"plain", errors.New("boom"), KindFatal},
		{"nil", nil, KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(StatusError(http.StatusBadGateway, "usage upload")))
	assert.Equal(t, KindTransient, Classify(StatusError(http.StatusTooManyRequests, "usage upload")))
	assert.Equal(t, KindNotFound, Classify(StatusError(http.StatusNotFound, "get backup")))
	assert.Equal(t, KindFatal, Classify(StatusError(http.StatusUnauthorized, "get backup")))
	assert.Contains(t, StatusError(http.StatusBadGateway, "usage upload").Error(), "502 Bad Gateway")
}

func TestKindSet(t *testing.T) {
	s := Kinds(KindTransient, KindNotFound)
	assert.True(t, s.Has(KindTransient))
	assert.True(t, s.Has(KindNotFound))
	assert.False(t, s.Has(KindValidation))
	assert.False(t, Network.Has(KindClusterAPI))
	assert.True(t, Cluster.Has(KindClusterAPI))
}
