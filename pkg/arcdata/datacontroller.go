package arcdata

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/azure"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

const (
	dataControllerLabel = "Data controller"

	// controllerLoginSecret holds the login of the controller REST service.
	controllerLoginSecret = "controller-login-secret"

	bootstrapperAccount = "sa-arc-bootstrapper"
	bootstrapperRole    = "arc:cr-arc-bootstrapper"
)

// DataControllerCreate holds the arguments of arc dc create.
type DataControllerCreate struct {
	Name string
	// Path is a custom resource file used instead of the default template.
	Path             string
	Infrastructure   string
	ConnectivityMode string
	// CRDDir holds the custom resource definitions applied before the data
	// controller is created.
	CRDDir string

	Subscription  string
	ResourceGroup string
	Location      string

	NoWait bool
	// Register puts the data controller's Azure resource once it is ready.
	Register bool
}

// DataControllerCreate deploys a data controller in indirect connectivity mode.
func (h *Handler) DataControllerCreate(ctx context.Context, opts DataControllerCreate) (*v1beta1.DataController, error) {
	dc := v1beta1.NewDataController()
	if opts.Path != "" {
		doc, err := readDocument(opts.Path, opts.Name)
		if err != nil {
			return nil, err
		}
		if dc, err = v1beta1.DataControllerFromMap(doc); err != nil {
			return nil, err
		}
	} else {
		dc.Name = opts.Name
	}
	dc.APIVersion = v1beta1.ArcGroupVersion.String()
	dc.Namespace = h.namespace()
	if opts.Infrastructure != "" {
		dc.Spec.Infrastructure = strings.ToLower(opts.Infrastructure)
	}
	if dc.Spec.Infrastructure == "" {
		dc.Spec.Infrastructure = v1beta1.DefaultInfrastructure
	}
	azureSettings := &dc.Spec.Settings.Azure
	if opts.ConnectivityMode != "" {
		azureSettings.ConnectionMode = strings.ToLower(opts.ConnectivityMode)
	}
	setDefault(&azureSettings.Subscription, opts.Subscription, h.Config.Azure.SubscriptionID)
	setDefault(&azureSettings.ResourceGroup, opts.ResourceGroup, h.Config.Azure.ResourceGroup)
	setDefault(&azureSettings.Location, opts.Location, h.Config.Azure.Location)
	if err := validation.DataController(dc); err != nil {
		return nil, err
	}
	if h.Config.Username == "" || h.Config.Password == "" {
		return nil, retry.Mark(retry.KindValidation,
			errors.New("the controller login is required; set AZDATA_USERNAME and AZDATA_PASSWORD"))
	}

	if info, err := h.Kube.GetClusterInfo(ctx); err != nil {
		h.Logger.Warn("could not read cluster info", zap.Error(err))
	} else if info.KubernetesVersion != "" {
		h.Logger.Info("deploying to cluster", zap.String("kubernetesVersion", info.KubernetesVersion),
			zap.String("nodeOSImage", info.NodeOSImage), zap.String("containerRuntime", info.ContainerRuntime))
	}
	if opts.CRDDir != "" {
		crds, err := kube.LoadCRDs(opts.CRDDir)
		if err != nil {
			return nil, err
		}
		created, err := h.Kube.EnsureCRDs(ctx, crds)
		if err != nil {
			return nil, err
		}
		for _, name := range created {
			h.printf("Created custom resource definition %s\n", name)
		}
	}
	if err := h.Kube.EnsureNamespace(ctx, h.namespace()); err != nil {
		return nil, err
	}
	if err := h.ensureBootstrapper(ctx); err != nil {
		return nil, err
	}
	if err := h.ensureAbsent(ctx, kube.DataControllerGVK, dataControllerLabel, dc.Name); err != nil {
		return nil, err
	}
	if _, err := h.Kube.EnsureSecret(ctx, h.namespace(), controllerLoginSecret, map[string][]byte{
		"username": []byte(h.Config.Username),
		"password": []byte(h.Config.Password),
	}); err != nil {
		return nil, err
	}

	obj, err := dc.ToUnstructured()
	if err != nil {
		return nil, err
	}
	if err := h.Kube.CreateObject(ctx, obj); err != nil {
		return nil, err
	}
	h.Logger.Info("created data controller", zap.String("name", dc.Name), zap.String("infrastructure", dc.Spec.Infrastructure))
	h.printf("Deploying data controller %s in namespace %s\n", dc.Name, h.namespace())
	if opts.NoWait {
		return dc, nil
	}
	if err := h.waitReady(ctx, kube.DataControllerGVK, dataControllerLabel, dc.Name); err != nil {
		return nil, err
	}
	if opts.Register {
		if err := h.registerDataController(ctx, dc.Name); err != nil {
			return dc, err
		}
	}
	return dc, nil
}

func setDefault(dst *string, values ...string) {
	for _, v := range values {
		if *dst != "" {
			return
		}
		*dst = v
	}
}

// ensureBootstrapper creates the service account the controller bootstraps its
// services with.
func (h *Handler) ensureBootstrapper(ctx context.Context) error {
	if err := h.Kube.EnsureServiceAccount(ctx, h.namespace(), bootstrapperAccount); err != nil {
		return err
	}
	role := &rbacv1.ClusterRole{
		Rules: []rbacv1.PolicyRule{
			{APIGroups: []string{v1beta1.ArcGroup, v1beta1.SQLGroup, v1beta1.TasksGroup}, Resources: []string{"*"}, Verbs: []string{"*"}},
			{APIGroups: []string{""}, Resources: []string{"pods", "services", "secrets", "configmaps", "persistentvolumeclaims", "serviceaccounts"}, Verbs: []string{"*"}},
			{APIGroups: []string{"apps"}, Resources: []string{"statefulsets", "deployments", "replicasets"}, Verbs: []string{"*"}},
			{APIGroups: []string{"storage.k8s.io"}, Resources: []string{"storageclasses"}, Verbs: []string{"get", "list"}},
		},
	}
	role.Name = bootstrapperRole
	if err := h.Kube.EnsureClusterRole(ctx, role); err != nil {
		return err
	}
	return h.Kube.EnsureClusterRoleBinding(ctx, bootstrapperRole+":"+h.namespace(), bootstrapperRole, h.namespace(), bootstrapperAccount)
}

func (h *Handler) registerDataController(ctx context.Context, name string) error {
	obj, err := h.getObject(ctx, kube.DataControllerGVK, dataControllerLabel, name)
	if err != nil {
		return err
	}
	rec, err := azure.NewDataControllerRecord(obj, "")
	if err != nil {
		return err
	}
	client, err := h.azureClient()
	if err != nil {
		return err
	}
	if err := client.PutDataController(ctx, rec); err != nil {
		return err
	}
	h.printf("Registered data controller %s in resource group %s\n", rec.InstanceName, rec.ResourceGroupName)
	return nil
}

// DataControllerDelete deletes a data controller and waits until it is gone.
func (h *Handler) DataControllerDelete(ctx context.Context, name string, noWait bool) error {
	if err := h.Kube.DeleteObject(ctx, kube.DataControllerGVK, h.namespace(), name); err != nil {
		if errors.Is(err, retry.ErrNotFound) {
			return errors.Wrapf(retry.ErrNotFound, "%s %s not found in namespace %s", dataControllerLabel, name, h.namespace())
		}
		return err
	}
	if !noWait {
		if err := h.waitDeleted(ctx, kube.DataControllerGVK, dataControllerLabel, name); err != nil {
			return err
		}
	}
	h.printf("Deleted data controller %s from namespace %s\n", name, h.namespace())
	return nil
}

// DataControllerStatus is the rollout state of a data controller.
type DataControllerStatus struct {
	Name               string `json:"name"`
	State              string `json:"state"`
	Generation         int64  `json:"generation"`
	ObservedGeneration int64  `json:"observedGeneration"`
}

// DataControllerStatus reports the state of the namespace's data controller.
func (h *Handler) DataControllerStatus(ctx context.Context) (DataControllerStatus, error) {
	obj, err := h.DataController(ctx)
	if err != nil {
		return DataControllerStatus{}, err
	}
	s := stateOf(obj)
	status := DataControllerStatus{
		Name:               obj.GetName(),
		State:              s.State,
		Generation:         s.DesiredGeneration,
		ObservedGeneration: s.ObservedGeneration,
	}
	h.printf("%s %s: state %s, generation %d, observed generation %d\n",
		dataControllerLabel, status.Name, status.State, status.Generation, status.ObservedGeneration)
	return status, nil
}

// DataControllerGet returns the namespace's data controller, optionally written
// to path.
func (h *Handler) DataControllerGet(ctx context.Context, path string) (*v1beta1.DataController, error) {
	obj, err := h.DataController(ctx)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := patch.WriteFile(path, obj.Object); err != nil {
			return nil, err
		}
		h.printf("%s %s written to %s\n", dataControllerLabel, obj.GetName(), path)
	}
	return v1beta1.DataControllerFromMap(obj.Object)
}

// DataControllerConfigShow prints the custom resource of the namespace's data
// controller.
func (h *Handler) DataControllerConfigShow(ctx context.Context) (patch.Document, error) {
	obj, err := h.DataController(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := patch.Marshal(obj.Object)
	if err != nil {
		return nil, err
	}
	h.printf("%s", raw)
	return obj.Object, nil
}

// Dashboard endpoint names accepted by DataControllerEndpoints.
const (
	EndpointLogsUI    = "logsui"
	EndpointMetricsUI = "metricsui"
)

// DataControllerEndpoints lists the dashboards published by the monitor stack of
// the data controller. A non-empty name selects one of logsui and metricsui.
func (h *Handler) DataControllerEndpoints(ctx context.Context, name string) ([]Endpoint, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" && name != EndpointLogsUI && name != EndpointMetricsUI {
		return nil, retry.Mark(retry.KindValidation,
			errors.Errorf("unknown endpoint '%s'; valid endpoints are %s, %s", name, EndpointLogsUI, EndpointMetricsUI))
	}
	obj, err := h.getObject(ctx, kube.MonitorGVK, "Monitor", v1beta1.MonitorName)
	if err != nil {
		return nil, err
	}
	logs, _, _ := unstructured.NestedString(obj.Object, "status", "logSearchDashboard")
	metrics, _, _ := unstructured.NestedString(obj.Object, "status", "metricsDashboard")
	var endpoints []Endpoint
	for _, e := range []Endpoint{
		{Description: "Log Search Dashboard", Endpoint: logs, Name: EndpointLogsUI, Protocol: "https"},
		{Description: "Metrics Dashboard", Endpoint: metrics, Name: EndpointMetricsUI, Protocol: "https"},
	} {
		if e.Endpoint == "" || (name != "" && name != e.Name) {
			continue
		}
		endpoints = append(endpoints, e)
	}
	h.printEndpoints(endpoints)
	return endpoints, nil
}
