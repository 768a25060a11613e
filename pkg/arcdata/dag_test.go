package arcdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const remoteCert = "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"

func writeRemoteCert(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.pem")
	require.NoError(t, os.WriteFile(path, []byte(remoteCert), 0o600))
	return path
}

func dagOptions(t *testing.T) DagCreate {
	return DagCreate{
		Name:           "dag1",
		DagName:        "dagSql1Sql2",
		LocalName:      "sql1",
		LocalPrimary:   true,
		RemoteName:     "sql2",
		RemoteURL:      "tcp://10.0.0.9:5022",
		RemoteCertFile: writeRemoteCert(t),
	}
}

func TestDagCreate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityIndirect))

	dag, err := env.handler.DagCreate(ctx, dagOptions(t))
	require.NoError(t, err)
	assert.Equal(t, v1beta1.DagSucceededState, dag.Status.State)

	obj, err := env.handler.Kube.ReadObject(ctx, kube.DagGVK, testNamespace, "dag1")
	require.NoError(t, err)
	input, _, _ := unstructured.NestedMap(obj.Object, "spec", "input")
	assert.Equal(t, "dagSql1Sql2", input["dagName"])
	assert.Equal(t, "tcp://10.0.0.9:5022", input["remoteEndpoint"])
	assert.Equal(t, remoteCert, input["remotePublicCert"])
	assert.Equal(t, true, input["isLocalPrimary"])
	assert.Contains(t, env.out.String(), "Distributed availability group dag1 is Ready")

	_, err = env.handler.DagCreate(ctx, dagOptions(t))
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
}

func TestDagCreateFailedReportsResults(t *testing.T) {
	ctx := context.Background()
	reads := 0
	status := func(obj *unstructured.Unstructured) {
		if obj.GetKind() != v1beta1.DagKind {
			reportReady(obj)
			return
		}
		reads++
		_ = unstructured.SetNestedField(obj.Object, "Failed", "status", "state")
		_ = unstructured.SetNestedField(obj.Object, "remote endpoint unreachable", "status", "results")
	}
	env := newTestEnv(t, status, dataControllerObject(t, v1beta1.ConnectivityIndirect))

	dag, err := env.handler.DagCreate(ctx, dagOptions(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, poll.ErrFailed)
	assert.Contains(t, err.Error(), "remote endpoint unreachable")
	assert.Equal(t, "failed", dag.Status.State)
	assert.Equal(t, 1, reads)
}

func TestDagCreateChecks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityIndirect))

	_, err := env.handler.DagCreate(ctx, DagCreate{Name: "dag1", RemoteCertFile: writeRemoteCert(t)})
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
	assert.Contains(t, err.Error(), "--dag-name, --local-name, --remote-name, --remote-url")

	opts := dagOptions(t)
	opts.RemoteCertFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err = env.handler.DagCreate(ctx, opts)
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))

	res := env.handler.Kube.GetObject(ctx, kube.DagGVK, testNamespace, "dag1")
	assert.True(t, res.NotFound())
}

func TestDagCreateRejectsDirectMode(t *testing.T) {
	env := newTestEnv(t, reportReady, dataControllerObject(t, v1beta1.ConnectivityDirect))

	_, err := env.handler.DagCreate(context.Background(), dagOptions(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported in direct connectivity mode")
}

func TestDagGetAndDelete(t *testing.T) {
	ctx := context.Background()
	dag := v1beta1.NewDag("dag1", v1beta1.DagInput{DagName: "dagSql1Sql2", LocalName: "sql1", RemoteName: "sql2"})
	dag.Namespace = testNamespace
	dag.Status = &v1beta1.DagStatus{State: "succeeded", Results: "joined"}
	obj, err := dag.ToUnstructured()
	require.NoError(t, err)
	env := newTestEnv(t, nil, dataControllerObject(t, v1beta1.ConnectivityIndirect), obj)

	got, err := env.handler.DagGet(ctx, "dag1")
	require.NoError(t, err)
	assert.Equal(t, "sql2", got.Spec.Input.RemoteName)
	assert.Contains(t, env.out.String(), `"dagName": "dagSql1Sql2"`)
	assert.Contains(t, env.out.String(), `"results": "joined"`)

	require.NoError(t, env.handler.DagDelete(ctx, "dag1"))
	assert.Contains(t, env.out.String(), "Deleted dag dag1 from namespace arc")
	assert.True(t, env.handler.Kube.GetObject(ctx, kube.DagGVK, testNamespace, "dag1").NotFound())

	err = env.handler.DagDelete(ctx, "dag1")
	assert.ErrorIs(t, err, retry.ErrNotFound)
}
