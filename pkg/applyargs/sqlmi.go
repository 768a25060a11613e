package applyargs

import (
	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
)

// SQLManagedInstance holds the flags of sql mi create and edit.
type SQLManagedInstance struct {
	Resources
	Storage

	Replicas           *int32
	Tier               *string
	LicenseType        *string
	Labels             *string
	Annotations        *string
	ServiceLabels      *string
	ServiceAnnotations *string
}

// ApplySQLManagedInstance projects args onto mi. Managed instances only have the
// default scheduling bucket, so role-scoped quantities are rejected.
func ApplySQLManagedInstance(mi *v1beta1.SQLManagedInstance, args SQLManagedInstance) error {
	mi.Kind = v1beta1.SQLManagedInstanceKind
	if err := applyRoleResources(args.Resources, func(role string) (*v1beta1.RoleSpec, error) {
		if role != v1beta1.RoleDefault {
			return nil, invalid(errors.Errorf("SQL managed instances do not support role '%s'", role))
		}
		return mi.DefaultRole(), nil
	}); err != nil {
		return err
	}
	if args.Replicas != nil {
		mi.Spec.Replicas = args.Replicas
	}
	if args.Tier != nil {
		mi.Spec.Tier = v1beta1.CanonicalTier(*args.Tier)
	}
	if args.LicenseType != nil {
		mi.Spec.LicenseType = v1beta1.CanonicalLicenseType(*args.LicenseType)
	}

	var err error
	if args.Labels != nil {
		if mi.Labels, err = ParseLabels(*args.Labels); err != nil {
			return err
		}
	}
	if args.Annotations != nil {
		if mi.Annotations, err = ParseLabels(*args.Annotations); err != nil {
			return err
		}
	}
	if args.ServiceLabels != nil || args.ServiceAnnotations != nil {
		if mi.Spec.Services == nil {
			mi.Spec.Services = &v1beta1.Services{}
		}
		if mi.Spec.Services.Primary == nil {
			mi.Spec.Services.Primary = &v1beta1.ServiceSpec{}
		}
		primary := mi.Spec.Services.Primary
		if args.ServiceLabels != nil {
			if primary.Labels, err = ParseLabels(*args.ServiceLabels); err != nil {
				return err
			}
		}
		if args.ServiceAnnotations != nil {
			if primary.Annotations, err = ParseLabels(*args.ServiceAnnotations); err != nil {
				return err
			}
		}
	}

	if mi.Spec.Storage == nil {
		mi.Spec.Storage = &v1beta1.Storage{}
	}
	applyStorage(mi.Spec.Storage, args.Storage)
	return nil
}
