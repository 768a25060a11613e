package v1beta1

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	ConnectivityIndirect = "indirect"
	ConnectivityDirect   = "direct"

	// ControllerServiceName names the controller's entry in spec.services.
	ControllerServiceName = "controller"
	// DefaultInfrastructure is used when --infrastructure is not given.
	DefaultInfrastructure = "other"
	// DataControllerNameMaxLength bounds data controller names.
	DataControllerNameMaxLength = 63

	controllerPort = 30080
)

// Infrastructures lists the accepted spec.infrastructure values.
var Infrastructures = []string{"aws", "gcp", "azure", "alibaba", "onpremises", "other"}

// DataController is the Arc data controller custom resource.
type DataController struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DataControllerSpec `json:"spec"`
	Status *Status            `json:"status,omitempty"`
}

// DataControllerSpec is spec of a data controller.
type DataControllerSpec struct {
	Infrastructure string                 `json:"infrastructure,omitempty"`
	Services       []NamedService         `json:"services,omitempty"`
	Settings       DataControllerSettings `json:"settings"`
	Storage        *Storage               `json:"storage,omitempty"`
	Security       *Security              `json:"security,omitempty"`
}

// NamedService is one entry of spec.services.
type NamedService struct {
	Name        string `json:"name"`
	ServiceType string `json:"serviceType,omitempty"`
	Port        int32  `json:"port,omitempty"`
}

// DataControllerSettings is spec.settings.
type DataControllerSettings struct {
	Azure      AzureSettings      `json:"azure"`
	Controller ControllerSettings `json:"controller"`
}

// AzureSettings ties the data controller to an Azure subscription.
type AzureSettings struct {
	ConnectionMode string `json:"connectionMode,omitempty"`
	Location       string `json:"location,omitempty"`
	ResourceGroup  string `json:"resourceGroup,omitempty"`
	Subscription   string `json:"subscription,omitempty"`
}

// ControllerSettings is spec.settings.controller.
type ControllerSettings struct {
	DisplayName string `json:"displayName,omitempty"`
}

// Security is spec.security.
type Security struct {
	AllowNodeMetricsCollection bool `json:"allowNodeMetricsCollection,omitempty"`
	AllowPodMetricsCollection  bool `json:"allowPodMetricsCollection,omitempty"`
}

// NewDataController returns the indirect mode template: a load balanced controller
// service and node and pod metrics collection enabled.
func NewDataController() *DataController {
	return &DataController{
		TypeMeta: metav1.TypeMeta{APIVersion: ArcGroupVersion.String(), Kind: DataControllerKind},
		Spec: DataControllerSpec{
			Infrastructure: DefaultInfrastructure,
			Services:       []NamedService{{Name: ControllerServiceName, ServiceType: "LoadBalancer", Port: controllerPort}},
			Settings: DataControllerSettings{
				Azure: AzureSettings{ConnectionMode: ConnectivityIndirect},
			},
			Security: &Security{AllowNodeMetricsCollection: true, AllowPodMetricsCollection: true},
		},
	}
}

// DataControllerFromMap hydrates a data controller from a document.
func DataControllerFromMap(m map[string]interface{}) (*DataController, error) {
	dc := &DataController{}
	if err := fromMap(m, dc); err != nil {
		return nil, err
	}
	return dc, nil
}

// ToMap renders the data controller as a document.
func (dc *DataController) ToMap() (map[string]interface{}, error) { return toMap(dc) }

// ToUnstructured renders the data controller for the dynamic client.
func (dc *DataController) ToUnstructured() (*unstructured.Unstructured, error) {
	return toUnstructured(dc)
}

// ControllerService returns the controller's service entry, or nil.
func (dc *DataController) ControllerService() *NamedService {
	for i := range dc.Spec.Services {
		if strings.EqualFold(dc.Spec.Services[i].Name, ControllerServiceName) {
			return &dc.Spec.Services[i]
		}
	}
	return nil
}

// DisplayName is the name the data controller is known by in Azure.
func (dc *DataController) DisplayName() string {
	if dc.Spec.Settings.Controller.DisplayName != "" {
		return dc.Spec.Settings.Controller.DisplayName
	}
	return dc.Name
}

// IsDirect reports whether the data controller runs in direct connectivity mode.
func (dc *DataController) IsDirect() bool {
	return strings.EqualFold(dc.Spec.Settings.Azure.ConnectionMode, ConnectivityDirect)
}
