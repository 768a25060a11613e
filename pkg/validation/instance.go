package validation

import (
	"context"
	"sort"
	"strings"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// StorageClassLookup finds a storage class on the cluster. It returns an error
// classified as retry.KindNotFound when the class does not exist.
type StorageClassLookup interface {
	StorageClassExists(ctx context.Context, name string) error
}

// Validator checks fully merged documents. Storage class lookups go through
// Executor with Policy, so a flaky API server is retried while a missing class is
// reported as a validation problem.
type Validator struct {
	StorageClasses StorageClassLookup
	Executor       *retry.Executor
	Policy         retry.Policy
}

// PostgreSQL validates a server group before create or update.
func (v *Validator) PostgreSQL(ctx context.Context, pg *v1beta1.PostgreSQL) error {
	p := &problems{resource: "postgres server group " + pg.Name}
	p.merge(Name("Postgres server group", pg.Name, v1beta1.PostgreSQLNameMaxLength))

	if !supportedVersion(pg.Spec.Engine.Version) {
		p.addf("unsupported engine version '%d'; supported versions are %v", pg.Spec.Engine.Version, v1beta1.SupportedEngineVersions)
	}
	if pg.Spec.Scale != nil {
		if w := pg.Spec.Scale.Workers; w != nil && *w < 0 {
			p.addf("workers cannot be negative")
		}
		if r := pg.Spec.Scale.Replicas; r != nil && *r < 1 {
			p.addf("replicas must be at least 1")
		}
	}
	roles := pg.Spec.Scheduling.AllRoles()
	for _, name := range sortedKeys(roles) {
		p.merge(Role(name, roles[name], PostgreSQLFloors))
	}
	if err := v.storageClasses(ctx, pg.Spec.Storage, p); err != nil {
		return err
	}
	return p.err()
}

// SQLManagedInstance validates a managed instance before create or update.
func (v *Validator) SQLManagedInstance(ctx context.Context, mi *v1beta1.SQLManagedInstance) error {
	p := &problems{resource: "SQL managed instance " + mi.Name}
	p.merge(Name("SQL managed instance", mi.Name, v1beta1.SQLManagedInstanceNameMaxLength))

	if mi.Spec.Tier != "" && !validTier(mi.Spec.Tier) {
		p.addf("invalid tier '%s'; allowed values are GeneralPurpose, gp, BusinessCritical, bc", mi.Spec.Tier)
	}
	if mi.Spec.LicenseType != "" && !validLicense(mi.Spec.LicenseType) {
		p.addf("invalid license type '%s'; allowed values are BasePrice, LicenseIncluded", mi.Spec.LicenseType)
	}
	if r := mi.Spec.Replicas; r != nil && *r < 1 {
		p.addf("replicas must be at least 1")
	}
	if mi.Spec.Scheduling != nil {
		p.merge(Role(v1beta1.RoleDefault, mi.Spec.Scheduling.Default, SQLManagedInstanceFloors))
	}
	if err := v.storageClasses(ctx, mi.Spec.Storage, p); err != nil {
		return err
	}
	return p.err()
}

// PostgreSQLUpdate checks the fields an edit may not change.
func PostgreSQLUpdate(current, desired *v1beta1.PostgreSQL) error {
	p := &problems{resource: "postgres server group " + current.Name}
	if desired.Spec.Engine.Version != current.Spec.Engine.Version {
		p.addf("engine version cannot be changed from %d to %d", current.Spec.Engine.Version, desired.Spec.Engine.Version)
	}
	if desired.Spec.Scale != nil && desired.Spec.Scale.Replicas != nil {
		switch r := *desired.Spec.Scale.Replicas; {
		case r == 0:
			p.addf("replicas cannot be set to 0")
		case r < current.Replicas():
			p.addf("replicas cannot be decreased from %d to %d", current.Replicas(), r)
		}
	}
	return p.err()
}

// SQLManagedInstanceUpdate checks the fields an edit may not change.
func SQLManagedInstanceUpdate(current, desired *v1beta1.SQLManagedInstance) error {
	p := &problems{resource: "SQL managed instance " + current.Name}
	if v1beta1.CanonicalTier(desired.Spec.Tier) != v1beta1.CanonicalTier(current.Spec.Tier) {
		p.addf("tier cannot be changed from '%s' to '%s'", current.Spec.Tier, desired.Spec.Tier)
	}
	if v1beta1.CanonicalLicenseType(desired.Spec.LicenseType) != v1beta1.CanonicalLicenseType(current.Spec.LicenseType) {
		p.addf("license type cannot be changed from '%s' to '%s'", current.Spec.LicenseType, desired.Spec.LicenseType)
	}
	return p.err()
}

// Infrastructure checks a data controller infrastructure value.
func Infrastructure(infra string) error {
	for _, i := range v1beta1.Infrastructures {
		if strings.EqualFold(i, infra) {
			return nil
		}
	}
	p := &problems{resource: "data controller"}
	p.addf("invalid infrastructure '%s'; supported values are %s", infra, strings.Join(v1beta1.Infrastructures, ", "))
	return p.err()
}

// DataController validates a data controller before create. Only indirect mode can
// be deployed from the command line.
func DataController(dc *v1beta1.DataController) error {
	p := &problems{resource: "data controller " + dc.Name}
	p.merge(Name("Data controller", dc.Name, v1beta1.DataControllerNameMaxLength))
	p.include(Infrastructure(dc.Spec.Infrastructure))
	if mode := dc.Spec.Settings.Azure.ConnectionMode; !strings.EqualFold(mode, v1beta1.ConnectivityIndirect) {
		p.addf("connectivity mode '%s' is not supported; use %s", mode, v1beta1.ConnectivityIndirect)
	}
	return p.err()
}

// ExportType checks an export type.
func ExportType(t string) error {
	for _, e := range v1beta1.ExportTypes {
		if strings.EqualFold(e, t) {
			return nil
		}
	}
	p := &problems{resource: "export"}
	p.addf("%s is not a supported type; specify one of %s", t, strings.Join(v1beta1.ExportTypes, ", "))
	return p.err()
}

func (v *Validator) storageClasses(ctx context.Context, s *v1beta1.Storage, p *problems) error {
	if v.StorageClasses == nil {
		return nil
	}
	seen := map[string]bool{}
	for _, name := range s.ClassNames() {
		if seen[name] {
			continue
		}
		seen[name] = true
		res := retry.Fetch(ctx, v.Executor, v.Policy.WithName("get storage class"), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, v.StorageClasses.StorageClassExists(ctx, name)
		})
		switch {
		case res.NotFound():
			p.addf("storage class '%s' does not exist", name)
		case res.Err != nil:
			return res.Err
		}
	}
	return nil
}

func supportedVersion(v int) bool {
	for _, s := range v1beta1.SupportedEngineVersions {
		if s == v {
			return true
		}
	}
	return false
}

func validTier(t string) bool {
	c := v1beta1.CanonicalTier(t)
	return c == v1beta1.TierGeneralPurpose || c == v1beta1.TierBusinessCritical
}

func validLicense(l string) bool {
	c := v1beta1.CanonicalLicenseType(l)
	return c == v1beta1.LicenseBasePrice || c == v1beta1.LicenseLicenseIncluded
}

func sortedKeys(m map[string]*v1beta1.RoleSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Password enforces the SQL Server password policy: at least eight characters
// drawn from three of upper case, lower case, digits and symbols, without the
// username.
func Password(username, password string) error {
	p := &problems{resource: "password"}
	switch {
	case password == "":
		p.addf("password cannot be empty")
	case username != "" && strings.Contains(password, username):
		p.addf("password cannot contain the username")
	case len(password) < 8:
		p.addf("password must be at least 8 characters")
	default:
		var upper, lower, digit, other int
		for _, r := range password {
			switch {
			case r >= 'A' && r <= 'Z':
				upper = 1
			case r >= 'a' && r <= 'z':
				lower = 1
			case r >= '0' && r <= '9':
				digit = 1
			default:
				other = 1
			}
		}
		if upper+lower+digit+other < 3 {
			p.addf("password must contain characters from three of: upper case, lower case, digits, symbols")
		}
	}
	return p.err()
}
