package arcdata

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/applyargs"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

var sqlmiKind = instanceKind{
	gvk:   kube.SQLManagedInstanceGVK,
	label: "SQL managed instance",
	listKind: func(obj *unstructured.Unstructured) string {
		return v1beta1.SQLManagedInstanceKind
	},
}

// SQLMICreate holds the arguments of sql mi create.
type SQLMICreate struct {
	Name string
	// Path is a custom resource file used instead of the default template.
	Path string
	Args applyargs.SQLManagedInstance

	NoWait             bool
	NoExternalEndpoint bool
	GeneratePassword   bool
}

// SQLMICreate creates a managed instance and waits until it is ready. The login
// comes from AZDATA_USERNAME and AZDATA_PASSWORD.
func (h *Handler) SQLMICreate(ctx context.Context, opts SQLMICreate) (*v1beta1.SQLManagedInstance, error) {
	mi := v1beta1.NewSQLManagedInstance()
	if opts.Path != "" {
		doc, err := readDocument(opts.Path, opts.Name)
		if err != nil {
			return nil, err
		}
		if mi, err = v1beta1.SQLManagedInstanceFromMap(doc); err != nil {
			return nil, err
		}
	} else {
		mi.Name = opts.Name
	}
	mi.APIVersion = v1beta1.SQLGroupVersion.String()
	mi.Namespace = h.namespace()
	if err := applyargs.ApplySQLManagedInstance(mi, opts.Args); err != nil {
		return nil, err
	}
	mi.Spec.Tier = v1beta1.CanonicalTier(mi.Spec.Tier)
	mi.Spec.LicenseType = v1beta1.CanonicalLicenseType(mi.Spec.LicenseType)

	if err := h.Validator.SQLManagedInstance(ctx, mi); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(h.Config.Username)
	if username == "" {
		return nil, retry.Mark(retry.KindValidation, errors.New("no login username; set AZDATA_USERNAME"))
	}
	pw, generated, err := h.loginPassword(username, opts.GeneratePassword)
	if err != nil {
		return nil, err
	}
	if err := validation.Password(username, pw); err != nil {
		return nil, err
	}
	if err := h.ensureAbsent(ctx, sqlmiKind.gvk, sqlmiKind.label, mi.Name); err != nil {
		return nil, err
	}
	if !opts.NoExternalEndpoint {
		if err := h.copyServiceType(ctx, &mi.Spec.Services); err != nil {
			return nil, err
		}
		if mi.Spec.Services != nil && mi.Spec.Services.Primary != nil && mi.Spec.ServiceType == "" {
			mi.Spec.ServiceType = mi.Spec.Services.Primary.ServiceType
		}
	}

	if err := h.ensureLoginSecret(ctx, mi.Name, username, pw); err != nil {
		return nil, err
	}
	if generated {
		h.printf("Generated password for user %s: %s\n", username, pw)
	}
	obj, err := mi.ToUnstructured()
	if err != nil {
		return nil, err
	}
	if err := h.Kube.CreateObject(ctx, obj); err != nil {
		return nil, err
	}
	h.Logger.Info("created managed instance", zap.String("name", mi.Name), zap.String("tier", mi.Spec.Tier))
	if opts.NoWait {
		h.printf("Submitted %s %s\n", sqlmiKind.label, mi.Name)
		return mi, nil
	}
	return mi, h.waitReady(ctx, sqlmiKind.gvk, sqlmiKind.label, mi.Name)
}

// SQLMIEdit holds the arguments of sql mi edit.
type SQLMIEdit struct {
	Name string
	// Path is a custom resource file whose spec replaces the stored one.
	Path string
	Args applyargs.SQLManagedInstance

	NoWait bool
}

// SQLMIEdit applies changes to a managed instance. It reports whether an update
// was submitted.
func (h *Handler) SQLMIEdit(ctx context.Context, opts SQLMIEdit) (bool, error) {
	obj, err := h.getObject(ctx, sqlmiKind.gvk, sqlmiKind.label, opts.Name)
	if err != nil {
		return false, err
	}
	current, err := v1beta1.SQLManagedInstanceFromMap(obj.Object)
	if err != nil {
		return false, err
	}
	source := obj.Object
	if opts.Path != "" {
		if source, err = readDocument(opts.Path, opts.Name); err != nil {
			return false, err
		}
	}
	desired, err := v1beta1.SQLManagedInstanceFromMap(source)
	if err != nil {
		return false, err
	}
	if err := applyargs.ApplySQLManagedInstance(desired, opts.Args); err != nil {
		return false, err
	}
	if err := validation.SQLManagedInstanceUpdate(current, desired); err != nil {
		return false, err
	}
	if err := h.Validator.SQLManagedInstance(ctx, desired); err != nil {
		return false, err
	}

	before, err := current.ToMap()
	if err != nil {
		return false, err
	}
	after, err := desired.ToMap()
	if err != nil {
		return false, err
	}
	changed, err := h.submit(ctx, sqlmiKind, obj, before, after)
	if err != nil || !changed {
		return changed, err
	}
	if opts.NoWait {
		h.printf("Submitted changes to %s %s\n", sqlmiKind.label, opts.Name)
		return true, nil
	}
	return true, h.waitReady(ctx, sqlmiKind.gvk, sqlmiKind.label, opts.Name)
}

// SQLMIDelete deletes a managed instance.
func (h *Handler) SQLMIDelete(ctx context.Context, name string) error {
	return h.deleteInstance(ctx, sqlmiKind, name)
}

// SQLMIShow prints a managed instance's document or writes it to path.
func (h *Handler) SQLMIShow(ctx context.Context, name, path string) (patch.Document, error) {
	return h.show(ctx, sqlmiKind, name, path)
}

// SQLMIList prints every managed instance of the namespace.
func (h *Handler) SQLMIList(ctx context.Context) ([]Summary, error) {
	return h.list(ctx, sqlmiKind)
}

// SQLMIEndpoints lists the connection endpoints of a managed instance. Clients
// such as sqlcmd separate host and port with a comma.
func (h *Handler) SQLMIEndpoints(ctx context.Context, name string) ([]Endpoint, error) {
	endpoint, err := h.externalEndpoint(ctx, sqlmiKind, name)
	if err != nil {
		return nil, err
	}
	endpoints := []Endpoint{{
		Description: "SQL Managed Instance",
		Endpoint:    strings.Replace(endpoint, ":", ",", 1),
	}}
	h.printEndpoints(endpoints)
	return endpoints, nil
}
