package kube

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

func newTestClient(t *testing.T, objs ...client.Object) *Client {
	t.Helper()
	scheme, err := NewScheme()
	require.NoError(t, err)
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
	return Wrap(c, nil, retry.NewPolicy("kube", 1, 0, retry.Network))
}

func postgres(t *testing.T, name string) *unstructured.Unstructured {
	t.Helper()
	pg := v1beta1.NewPostgreSQL()
	pg.Name = name
	pg.Namespace = "arc"
	pg.Spec.Engine.Version = 12
	u, err := pg.ToUnstructured()
	require.NoError(t, err)
	return u
}

func TestCustomObjectLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	missing := c.GetObject(ctx, PostgreSQLGVK, "arc", "pg1")
	assert.True(t, missing.NotFound())

	require.NoError(t, c.CreateObject(ctx, postgres(t, "pg1")))
	require.NoError(t, c.CreateObject(ctx, postgres(t, "pg2")))

	got := c.GetObject(ctx, PostgreSQLGVK, "arc", "pg1")
	require.True(t, got.Found(), "%v", got.Err)
	version, _, _ := unstructured.NestedInt64(got.Value.Object, "spec", "engine", "version")
	assert.Equal(t, int64(12), version)

	require.NoError(t, unstructured.SetNestedField(got.Value.Object, int64(3), "spec", "scale", "workers"))
	require.NoError(t, c.UpdateObject(ctx, got.Value))

	items, err := c.ListObjects(ctx, PostgreSQLGVK, "arc")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, c.MergePatchObject(ctx, PostgreSQLGVK, "arc", "pg2", []byte(`{"spec":{"dev":true}}`)))
	patched := c.GetObject(ctx, PostgreSQLGVK, "arc", "pg2")
	require.True(t, patched.Found())
	dev, _, _ := unstructured.NestedBool(patched.Value.Object, "spec", "dev")
	assert.True(t, dev)

	require.NoError(t, c.DeleteObject(ctx, PostgreSQLGVK, "arc", "pg1"))
	err = c.DeleteObject(ctx, PostgreSQLGVK, "arc", "pg1")
	assert.True(t, errors.Is(err, retry.ErrNotFound))
}

func TestCreateExistingObjectIsNotRetried(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	c.Policy = retry.NewPolicy("kube", 3, 0, retry.Network)
	require.NoError(t, c.CreateObject(ctx, postgres(t, "pg1")))

	err := c.CreateObject(ctx, postgres(t, "pg1"))
	require.Error(t, err)
	assert.Equal(t, retry.KindClusterAPI, retry.Classify(err))
}

func TestEnsureNamespaceAndSecret(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.EnsureNamespace(ctx, "arc"))
	require.NoError(t, c.EnsureNamespace(ctx, "arc"))
	exists, err := c.NamespaceExists(ctx, "arc")
	require.NoError(t, err)
	assert.True(t, exists)

	created, err := c.EnsureSecret(ctx, "arc", "pg1-login-secret", map[string][]byte{"password": []byte("x")})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = c.EnsureSecret(ctx, "arc", "pg1-login-secret", nil)
	require.NoError(t, err)
	assert.False(t, created)

	s := &corev1.Secret{}
	require.NoError(t, c.Client.Get(ctx, client.ObjectKey{Namespace: "arc", Name: "pg1-login-secret"}, s))
	assert.Equal(t, []byte("x"), s.Data["password"])
}

func TestServiceAccountAndRBAC(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	require.NoError(t, c.EnsureServiceAccount(ctx, "arc", "sa-arc-controller"))
	require.NoError(t, c.EnsureServiceAccount(ctx, "arc", "sa-arc-controller"))
	require.NoError(t, c.EnsureClusterRoleBinding(ctx, "arc:cr-arc-dc", "cr-arc-dc", "arc", "sa-arc-controller"))
}

func TestStorageClassExists(t *testing.T) {
	sc := &storagev1.StorageClass{Provisioner: "kubernetes.io/no-provisioner"}
	sc.Name = "local-storage"
	c := newTestClient(t, sc)

	assert.NoError(t, c.StorageClassExists(context.Background(), "local-storage"))
	err := c.StorageClassExists(context.Background(), "premium")
	assert.True(t, errors.Is(err, retry.ErrNotFound))
}

func TestLoadAndEnsureCRDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "postgresql.yaml"), []byte(`
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: postgresqls.arcdata.microsoft.com
spec:
  group: arcdata.microsoft.com
  names:
    kind: postgresql
    plural: postgresqls
  scope: Namespaced
  versions:
  - name: v1beta1
    served: true
    storage: true
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	crds, err := LoadCRDs(dir)
	require.NoError(t, err)
	require.Len(t, crds, 1)

	c := newTestClient(t)
	created, err := c.EnsureCRDs(context.Background(), crds)
	require.NoError(t, err)
	assert.Equal(t, []string{"postgresqls.arcdata.microsoft.com"}, created)

	created, err = c.EnsureCRDs(context.Background(), crds)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestGetClusterInfoWithoutRestConfig(t *testing.T) {
	info, err := newTestClient(t).GetClusterInfo(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.KubernetesVersion)
}
