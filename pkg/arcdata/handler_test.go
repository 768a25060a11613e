package arcdata

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/azure"
	"github.com/microsoft/arcdata-cli/pkg/config"
	"github.com/microsoft/arcdata-cli/pkg/controllersvc"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const testNamespace = "arc"

// instantTimer fires as soon as it is started.
type instantTimer struct{ c chan time.Time }

func newInstantTimer() backoff.Timer { return &instantTimer{} }

func (t *instantTimer) Start(time.Duration) {
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

// testingT is satisfied by *testing.T and by GinkgoT().
type testingT interface {
	require.TestingT
	Helper()
	TempDir() string
	Cleanup(func())
}

// statusFunc sets the status a custom object reports when it is read.
type statusFunc func(obj *unstructured.Unstructured)

// reportReady makes every custom object ready for its current generation, every
// export task completed and every distributed availability group succeeded.
func reportReady(obj *unstructured.Unstructured) {
	switch obj.GetKind() {
	case v1beta1.ExportTaskKind:
		_ = unstructured.SetNestedField(obj.Object, v1beta1.ExportCompletedState, "status", "state")
		_ = unstructured.SetNestedField(obj.Object, "/exports/index.json", "status", "path")
		return
	case v1beta1.DagKind:
		_ = unstructured.SetNestedField(obj.Object, "Succeeded", "status", "state")
		return
	}
	_ = unstructured.SetNestedField(obj.Object, "Ready", "status", "state")
	_ = unstructured.SetNestedField(obj.Object, obj.GetGeneration(), "status", "observedGeneration")
}

type testEnv struct {
	handler *Handler
	client  client.Client
	out     *bytes.Buffer
}

func newTestEnv(t testingT, status statusFunc, objs ...client.Object) *testEnv {
	t.Helper()
	scheme, err := kube.NewScheme()
	require.NoError(t, err)
	custom := map[string]bool{}
	for _, gvk := range kube.CustomKinds {
		custom[gvk.Kind] = true
	}
	fc := fake.NewClientBuilder().
		WithScheme(scheme).
		WithObjects(objs...).
		WithInterceptorFuncs(interceptor.Funcs{
			Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
				if err := c.Get(ctx, key, obj, opts...); err != nil {
					return err
				}
				if u, ok := obj.(*unstructured.Unstructured); ok && status != nil && custom[u.GetKind()] {
					status(u)
				}
				return nil
			},
		}).
		Build()

	cfg := config.Default()
	cfg.Namespace = testNamespace
	cfg.RetryAttempts = 1
	cfg.RetryInterval = 0
	cfg.PollInterval = time.Millisecond
	cfg.ExportAttempts = 3
	cfg.StateDir = t.TempDir()
	cfg.Username = "arcadmin"
	cfg.Password = "Arc-Passw0rd!"

	exec := &retry.Executor{NewTimer: newInstantTimer}
	kc := kube.Wrap(fc, exec, cfg.RetryPolicy("kube", retry.Network))
	h := New(cfg, kc, exec, zap.NewNop(), nil)
	out := &bytes.Buffer{}
	h.Out = out
	h.NewTimer = newInstantTimer
	return &testEnv{handler: h, client: fc, out: out}
}

func dataControllerObject(t testingT, mode string) *unstructured.Unstructured {
	t.Helper()
	dc := v1beta1.NewDataController()
	dc.Name = "arc-dc"
	dc.Namespace = testNamespace
	dc.Spec.Settings.Azure = v1beta1.AzureSettings{
		ConnectionMode: mode,
		Subscription:   "sub-1",
		ResourceGroup:  "rg-1",
		Location:       "eastus",
	}
	dc.Status = &v1beta1.Status{State: "Ready", ExternalEndpoint: "https://10.0.0.4:30080"}
	u, err := dc.ToUnstructured()
	require.NoError(t, err)
	return u
}

func postgresObject(t testingT, name, state string) *unstructured.Unstructured {
	t.Helper()
	pg := v1beta1.NewPostgreSQL()
	pg.Name = name
	pg.Namespace = testNamespace
	pg.UID = types.UID("uid-" + name)
	pg.Spec.Engine.Version = 12
	pg.Status = &v1beta1.Status{State: state, ExternalEndpoint: "10.0.0.5:5432", ReadyPods: "1/1"}
	u, err := pg.ToUnstructured()
	require.NoError(t, err)
	return u
}

func newControllerClient(t testingT, handler http.HandlerFunc) *controllersvc.Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	c, err := controllersvc.NewClient(controllersvc.Options{
		Endpoint:  srv.URL,
		Username:  "arcadmin",
		Password:  "Arc-Passw0rd!",
		Transport: srv.Client(),
		Executor:  &retry.Executor{NewTimer: newInstantTimer},
		Policy:    retry.NewPolicy("controller", 1, 0, retry.Network),
	})
	require.NoError(t, err)
	return c
}

type fakeCredential struct{}

func (fakeCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func newAzureClient(t testingT, handler http.HandlerFunc) *azure.Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	c, err := azure.NewClient(azure.Options{
		Azure:         config.AzureConfig{Endpoint: srv.URL},
		Credential:    fakeCredential{},
		Transport:     srv.Client(),
		UsageEndpoint: srv.URL,
		Executor:      &retry.Executor{NewTimer: newInstantTimer},
		Policy:        retry.NewPolicy("azure", 1, 0, retry.Network),
	})
	require.NoError(t, err)
	return c
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}
