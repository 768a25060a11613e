package arcdata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// File names written by ConfigInit.
const (
	templateSpecFile = "spec.json"
	templateCRDFile  = "crd.json"
)

// template is the default document of one custom resource kind.
type template struct {
	kind     string
	resource schema.GroupVersionResource
	document func() (map[string]interface{}, error)
}

var templates = []template{
	{
		kind:     v1beta1.PostgreSQLKind,
		resource: v1beta1.PostgreSQLResource,
		document: func() (map[string]interface{}, error) {
			pg := v1beta1.NewPostgreSQL()
			pg.Name = "postgres01"
			return pg.ToMap()
		},
	},
	{
		kind:     v1beta1.SQLManagedInstanceKind,
		resource: v1beta1.SQLManagedInstanceResource,
		document: func() (map[string]interface{}, error) {
			mi := v1beta1.NewSQLManagedInstance()
			mi.Name = "sqlmi01"
			return mi.ToMap()
		},
	},
	{
		kind:     v1beta1.DataControllerKind,
		resource: v1beta1.DataControllerResource,
		document: func() (map[string]interface{}, error) {
			dc := v1beta1.NewDataController()
			dc.Name = "arc-dc"
			return dc.ToMap()
		},
	},
}

var templateAliases = map[string]string{
	"postgres": v1beta1.PostgreSQLKind,
	"sqlmi":    v1beta1.SQLManagedInstanceKind,
	"dc":       v1beta1.DataControllerKind,
}

func lookupTemplate(kind string) (template, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	if alias, ok := templateAliases[k]; ok {
		k = alias
	}
	for _, t := range templates {
		if t.kind == k {
			return t, nil
		}
	}
	return template{}, retry.Mark(retry.KindValidation,
		errors.Errorf("unknown kind '%s'; valid kinds are postgresql, sqlmanagedinstance, datacontroller", kind))
}

// ConfigInit writes the default custom resource of kind to dir/spec.json and,
// when the cluster has it installed, the kind's definition to dir/crd.json. It
// returns the files written.
func (h *Handler) ConfigInit(ctx context.Context, kind, dir string) ([]string, error) {
	t, err := lookupTemplate(kind)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, retry.Mark(retry.KindValidation, errors.Errorf("please specify a directory path; %s is a file", dir))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}

	doc, err := t.document()
	if err != nil {
		return nil, err
	}
	specPath := filepath.Join(dir, templateSpecFile)
	if err := patch.WriteFile(specPath, doc); err != nil {
		return nil, err
	}
	written := []string{specPath}

	if h.Kube != nil {
		crdPath, err := h.writeCRD(ctx, t, dir)
		if err != nil {
			return written, err
		}
		if crdPath != "" {
			written = append(written, crdPath)
		}
	}
	h.printf("%s template created in directory: %s\n", t.kind, dir)
	return written, nil
}

// writeCRD copies the installed definition of t into dir. A cluster without it
// yields no file.
func (h *Handler) writeCRD(ctx context.Context, t template, dir string) (string, error) {
	name := t.resource.GroupResource().String()
	res := h.Kube.GetCRD(ctx, name)
	switch {
	case res.NotFound():
		h.Logger.Info("custom resource definition not installed", zap.String("crd", name))
		return "", nil
	case res.Err != nil:
		return "", errors.Wrapf(res.Err, "get crd %s", name)
	}
	crd := res.Value
	crd.APIVersion = apiextensionsv1.SchemeGroupVersion.String()
	crd.Kind = "CustomResourceDefinition"
	doc, err := runtime.DefaultUnstructuredConverter.ToUnstructured(crd)
	if err != nil {
		return "", errors.Wrapf(err, "encode crd %s", name)
	}
	dropServerFields(doc)
	path := filepath.Join(dir, templateCRDFile)
	return path, patch.WriteFile(path, doc)
}

// dropServerFields strips what the API server adds to a stored object.
func dropServerFields(doc map[string]interface{}) {
	delete(doc, "status")
	if meta, ok := doc["metadata"].(map[string]interface{}); ok {
		for _, k := range []string{"resourceVersion", "uid", "generation", "creationTimestamp", "managedFields"} {
			delete(meta, k)
		}
	}
}
