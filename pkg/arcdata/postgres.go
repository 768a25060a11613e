package arcdata

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/applyargs"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

// postgresUser is the login created for every server group.
const postgresUser = "postgres"

var postgresKind = instanceKind{
	gvk:   kube.PostgreSQLGVK,
	label: "Postgres server group",
	listKind: func(obj *unstructured.Unstructured) string {
		version, _, _ := unstructured.NestedInt64(obj.Object, "spec", "engine", "version")
		return fmt.Sprintf("%s-%d", v1beta1.PostgreSQLKind, version)
	},
}

// PostgresCreate holds the arguments of postgres server create.
type PostgresCreate struct {
	Name string
	// Path is a custom resource file used instead of the default template.
	Path string
	Args applyargs.Postgres

	NoWait             bool
	NoExternalEndpoint bool
	GeneratePassword   bool
}

// PostgresCreate creates a server group and waits until it is ready.
func (h *Handler) PostgresCreate(ctx context.Context, opts PostgresCreate) (*v1beta1.PostgreSQL, error) {
	pg := v1beta1.NewPostgreSQL()
	if opts.Path != "" {
		doc, err := readDocument(opts.Path, opts.Name)
		if err != nil {
			return nil, err
		}
		if pg, err = v1beta1.PostgreSQLFromMap(doc); err != nil {
			return nil, err
		}
	} else {
		pg.Name = opts.Name
	}
	pg.APIVersion = v1beta1.ArcGroupVersion.String()
	pg.Namespace = h.namespace()
	if pg.Spec.Engine.Version == 0 && opts.Args.EngineVersion == nil {
		pg.Spec.Engine.Version = v1beta1.DefaultEngineVersion
	}
	if err := applyargs.ApplyPostgres(pg, opts.Args); err != nil {
		return nil, err
	}
	if h.Config.PostgresDevelopment {
		pg.Spec.Dev = true
	}

	if err := h.Validator.PostgreSQL(ctx, pg); err != nil {
		return nil, err
	}
	if err := h.ensureAbsent(ctx, postgresKind.gvk, postgresKind.label, pg.Name); err != nil {
		return nil, err
	}
	if !opts.NoExternalEndpoint {
		if err := h.copyServiceType(ctx, &pg.Spec.Services); err != nil {
			return nil, err
		}
	}

	pw, generated, err := h.loginPassword(postgresUser, opts.GeneratePassword)
	if err != nil {
		return nil, err
	}
	if err := h.ensureLoginSecret(ctx, pg.Name, postgresUser, pw); err != nil {
		return nil, err
	}
	if generated {
		h.printf("Generated password for user %s: %s\n", postgresUser, pw)
	}

	obj, err := pg.ToUnstructured()
	if err != nil {
		return nil, err
	}
	if err := h.Kube.CreateObject(ctx, obj); err != nil {
		return nil, err
	}
	h.Logger.Info("created server group", zap.String("name", pg.Name), zap.Int("engineVersion", pg.Spec.Engine.Version))
	if opts.NoWait {
		h.printf("Submitted %s %s\n", postgresKind.label, pg.Name)
		return pg, nil
	}
	return pg, h.waitReady(ctx, postgresKind.gvk, postgresKind.label, pg.Name)
}

// PostgresEdit holds the arguments of postgres server edit.
type PostgresEdit struct {
	Name string
	// Path is a custom resource file whose spec replaces the stored one.
	Path string
	Args applyargs.Postgres

	NoWait bool
}

// PostgresEdit applies changes to a server group. It reports whether an update was
// submitted.
func (h *Handler) PostgresEdit(ctx context.Context, opts PostgresEdit) (bool, error) {
	obj, err := h.getObject(ctx, postgresKind.gvk, postgresKind.label, opts.Name)
	if err != nil {
		return false, err
	}
	current, err := v1beta1.PostgreSQLFromMap(obj.Object)
	if err != nil {
		return false, err
	}
	source := obj.Object
	if opts.Path != "" {
		if source, err = readDocument(opts.Path, opts.Name); err != nil {
			return false, err
		}
	}
	desired, err := v1beta1.PostgreSQLFromMap(source)
	if err != nil {
		return false, err
	}
	if err := applyargs.ApplyPostgres(desired, opts.Args); err != nil {
		return false, err
	}

	if err := validation.PostgreSQLUpdate(current, desired); err != nil {
		return false, err
	}
	if err := h.Validator.PostgreSQL(ctx, desired); err != nil {
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
	changed, err := h.submit(ctx, postgresKind, obj, before, after)
	if err != nil || !changed {
		return changed, err
	}
	if opts.NoWait {
		h.printf("Submitted changes to %s %s\n", postgresKind.label, opts.Name)
		return true, nil
	}
	return true, h.waitReady(ctx, postgresKind.gvk, postgresKind.label, opts.Name)
}

// PostgresDelete deletes a server group.
func (h *Handler) PostgresDelete(ctx context.Context, name string) error {
	return h.deleteInstance(ctx, postgresKind, name)
}

// PostgresShow prints a server group's document or writes it to path.
func (h *Handler) PostgresShow(ctx context.Context, name, path string) (patch.Document, error) {
	return h.show(ctx, postgresKind, name, path)
}

// PostgresList prints every server group of the namespace.
func (h *Handler) PostgresList(ctx context.Context) ([]Summary, error) {
	return h.list(ctx, postgresKind)
}

// PostgresEndpoints lists the connection endpoints of a server group.
func (h *Handler) PostgresEndpoints(ctx context.Context, name string) ([]Endpoint, error) {
	endpoint, err := h.externalEndpoint(ctx, postgresKind, name)
	if err != nil {
		return nil, err
	}
	endpoints := []Endpoint{{
		Description: "PostgreSQL Instance",
		Endpoint:    fmt.Sprintf("postgresql://%s:<replace with password>@%s", postgresUser, endpoint),
	}}
	h.printEndpoints(endpoints)
	return endpoints, nil
}

func (h *Handler) getPostgres(ctx context.Context, name string) (*v1beta1.PostgreSQL, error) {
	obj, err := h.getObject(ctx, postgresKind.gvk, postgresKind.label, name)
	if err != nil {
		return nil, err
	}
	return v1beta1.PostgreSQLFromMap(obj.Object)
}
