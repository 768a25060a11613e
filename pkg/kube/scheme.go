package kube

import (
	"github.com/pkg/errors"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
)

// Kinds of the custom resources the CLI manages.
var (
	PostgreSQLGVK         = v1beta1.ArcGroupVersion.WithKind(v1beta1.PostgreSQLKind)
	DataControllerGVK     = v1beta1.ArcGroupVersion.WithKind(v1beta1.DataControllerKind)
	SQLManagedInstanceGVK = v1beta1.SQLGroupVersion.WithKind(v1beta1.SQLManagedInstanceKind)
	ExportTaskGVK         = v1beta1.TasksGroupVersion.WithKind(v1beta1.ExportTaskKind)
	DagGVK                = v1beta1.SQLGroupVersion.WithKind(v1beta1.DagKind)
	MonitorGVK            = v1beta1.ArcGroupVersion.WithKind(v1beta1.MonitorKind)
)

// CustomKinds lists every custom kind registered by NewScheme.
var CustomKinds = []schema.GroupVersionKind{
	PostgreSQLGVK, DataControllerGVK, SQLManagedInstanceGVK, ExportTaskGVK, DagGVK, MonitorGVK,
}

// NewScheme registers the core types, CRDs, and the custom kinds as unstructured
// objects.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, errors.Wrap(err, "register core types")
	}
	if err := apiextensionsv1.AddToScheme(scheme); err != nil {
		return nil, errors.Wrap(err, "register CRD types")
	}
	AddCustomKinds(scheme)
	return scheme, nil
}

// AddCustomKinds registers the custom kinds and their lists as unstructured.
func AddCustomKinds(scheme *runtime.Scheme) {
	for _, gvk := range CustomKinds {
		scheme.AddKnownTypeWithName(gvk, &unstructured.Unstructured{})
		scheme.AddKnownTypeWithName(gvk.GroupVersion().WithKind(gvk.Kind+"List"), &unstructured.UnstructuredList{})
	}
}
