package azure

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
)

// Resource types under the Microsoft.AzureArcData provider.
const (
	TypeDataControllers     = "dataControllers"
	TypeSQLManagedInstances = "sqlManagedInstances"
	TypePostgresInstances   = "postgresInstances"

	// SKUNameVCore is the only SQL managed instance sku.
	SKUNameVCore = "vCore"
)

// ResourceType maps a custom resource kind to its Azure resource type.
func ResourceType(kind string) (string, error) {
	switch strings.ToLower(kind) {
	case v1beta1.DataControllerKind:
		return TypeDataControllers, nil
	case v1beta1.SQLManagedInstanceKind:
		return TypeSQLManagedInstances, nil
	case v1beta1.PostgreSQLKind:
		return TypePostgresInstances, nil
	}
	return "", errors.Errorf("no azure resource type for kind %q", kind)
}

// DataControllerRecord is the data controller entry of an export file.
type DataControllerRecord struct {
	InstanceName      string                 `json:"instanceName"`
	InstanceNamespace string                 `json:"instanceNamespace"`
	Kind              string                 `json:"kind"`
	SubscriptionID    string                 `json:"subscriptionId"`
	ResourceGroupName string                 `json:"resourceGroupName"`
	Location          string                 `json:"location"`
	ConnectionMode    string                 `json:"connectionMode"`
	Infrastructure    string                 `json:"infrastructure"`
	PublicKey         string                 `json:"publicKey"`
	K8sRaw            map[string]interface{} `json:"k8sRaw"`
}

// UID is the cluster-assigned uid of the data controller.
func (r *DataControllerRecord) UID() string {
	uid, _, _ := unstructured.NestedString(r.K8sRaw, "metadata", "uid")
	return uid
}

// InstanceRecord is a live instance entry of an export file.
type InstanceRecord struct {
	Kind              string                 `json:"kind"`
	InstanceName      string                 `json:"instanceName"`
	InstanceNamespace string                 `json:"instanceNamespace"`
	CreationTimestamp string                 `json:"creationTimestamp,omitempty"`
	ExternalEndpoint  string                 `json:"externalEndpoint,omitempty"`
	VCores            string                 `json:"vcores,omitempty"`
	UID               string                 `json:"uid,omitempty"`
	K8sRaw            map[string]interface{} `json:"k8sRaw,omitempty"`
}

// Key identifies an instance across the live and deleted lists.
func (r *InstanceRecord) Key() string {
	return fmt.Sprintf("%s/%s.%s", r.Kind, r.InstanceName, r.InstanceNamespace)
}

// NewInstanceRecord builds the export entry for a ready custom resource.
func NewInstanceRecord(obj *unstructured.Unstructured) InstanceRecord {
	endpoint, _, _ := unstructured.NestedString(obj.Object, "status", "externalEndpoint")
	if endpoint == "" {
		endpoint = "-"
	}
	vcores := "-"
	if v, found, _ := unstructured.NestedFieldNoCopy(obj.Object, "spec", "limits", "vcores"); found {
		vcores = fmt.Sprint(v)
	}
	return InstanceRecord{
		Kind:              obj.GetKind(),
		InstanceName:      obj.GetName(),
		InstanceNamespace: obj.GetNamespace(),
		CreationTimestamp: obj.GetCreationTimestamp().UTC().Format("2006-01-02T15:04:05Z"),
		ExternalEndpoint:  endpoint,
		VCores:            vcores,
		K8sRaw:            obj.Object,
	}
}

// NewDataControllerRecord builds the export entry for a data controller.
func NewDataControllerRecord(obj *unstructured.Unstructured, publicKey string) (DataControllerRecord, error) {
	dc, err := v1beta1.DataControllerFromMap(obj.Object)
	if err != nil {
		return DataControllerRecord{}, err
	}
	azure := dc.Spec.Settings.Azure
	infra := dc.Spec.Infrastructure
	if infra == "" {
		infra = v1beta1.DefaultInfrastructure
	}
	return DataControllerRecord{
		InstanceName:      dc.DisplayName(),
		InstanceNamespace: obj.GetNamespace(),
		Kind:              "dataController",
		SubscriptionID:    azure.Subscription,
		ResourceGroupName: azure.ResourceGroup,
		Location:          azure.Location,
		ConnectionMode:    azure.ConnectionMode,
		Infrastructure:    infra,
		PublicKey:         publicKey,
		K8sRaw:            obj.Object,
	}, nil
}
