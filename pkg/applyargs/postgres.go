package applyargs

import (
	"github.com/pkg/errors"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
)

// Storage holds the storage class and volume size flags. Nil means not given.
type Storage struct {
	ClassData     *string
	ClassLogs     *string
	ClassBackups  *string
	ClassDataLogs *string
	SizeData      *string
	SizeLogs      *string
	SizeBackups   *string
	SizeDataLogs  *string
}

// Resources holds the role-scoped quantity flags. Nil means not given.
type Resources struct {
	MemoryRequest *string
	MemoryLimit   *string
	CoresRequest  *string
	CoresLimit    *string
}

// Postgres holds the flags of postgres server create and edit.
type Postgres struct {
	Resources
	Storage

	EngineVersion *int
	Workers       *int32
	Replicas      *int32
	Extensions    *string
	Port          *int32

	EngineSettings            *string
	CoordinatorEngineSettings *string
	WorkerEngineSettings      *string
	// ReplaceEngineSettings discards existing settings of every role being set.
	ReplaceEngineSettings bool
}

// ApplyPostgres projects args onto pg.
func ApplyPostgres(pg *v1beta1.PostgreSQL, args Postgres) error {
	pg.Kind = v1beta1.PostgreSQLKind
	if pg.Spec.Scheduling == nil {
		pg.Spec.Scheduling = &v1beta1.PostgresScheduling{}
	}
	if err := applyRoleResources(args.Resources, func(role string) (*v1beta1.RoleSpec, error) {
		r := pg.Spec.Scheduling.Role(role)
		if r == nil {
			return nil, invalid(errors.Errorf("role '%s' has no scheduling", role))
		}
		return r, nil
	}); err != nil {
		return err
	}

	if args.EngineVersion != nil {
		if !supported(*args.EngineVersion) {
			return invalid(errors.Errorf("unsupported engine version '%d'", *args.EngineVersion))
		}
		pg.Spec.Engine.Version = *args.EngineVersion
	}
	if args.Workers != nil || args.Replicas != nil {
		if pg.Spec.Scale == nil {
			pg.Spec.Scale = &v1beta1.Scale{}
		}
		if args.Workers != nil {
			pg.Spec.Scale.Workers = args.Workers
		}
		if args.Replicas != nil {
			pg.Spec.Scale.Replicas = args.Replicas
		}
	}
	if args.Extensions != nil {
		names, err := ParseList(*args.Extensions)
		if err != nil {
			return err
		}
		pg.Spec.Engine.SetExtensions(names)
	}
	if args.Port != nil {
		if pg.Spec.Services == nil {
			pg.Spec.Services = &v1beta1.Services{}
		}
		if pg.Spec.Services.Primary == nil {
			pg.Spec.Services.Primary = &v1beta1.ServiceSpec{}
		}
		pg.Spec.Services.Primary.Port = *args.Port
	}

	for role, s := range map[string]*string{
		v1beta1.RoleDefault:     args.EngineSettings,
		v1beta1.RoleCoordinator: args.CoordinatorEngineSettings,
		v1beta1.RoleWorker:      args.WorkerEngineSettings,
	} {
		if s == nil {
			continue
		}
		triples, err := ParseSettings(role, *s)
		if err != nil {
			return err
		}
		SetEngineSettings(&pg.Spec.Engine, role, triples, args.ReplaceEngineSettings)
	}

	if pg.Spec.Storage == nil {
		pg.Spec.Storage = &v1beta1.Storage{}
	}
	applyStorage(pg.Spec.Storage, args.Storage)

	pg.EnsureCitus()
	return nil
}

// SetEngineSettings merges triples into role's settings, or replaces them when
// replace is set. An empty value deletes the key.
func SetEngineSettings(e *v1beta1.Engine, role string, triples []Triple, replace bool) {
	if e.Settings == nil {
		e.Settings = &v1beta1.EngineSettings{}
	}
	var existing v1beta1.Settings
	if role == v1beta1.RoleDefault {
		existing = e.Settings.Default
	} else {
		existing = e.Settings.Roles[role]
	}

	next := MergeSettings(existing, triples, replace)

	if role == v1beta1.RoleDefault {
		e.Settings.Default = next
		return
	}
	if e.Settings.Roles == nil {
		e.Settings.Roles = map[string]v1beta1.Settings{}
	}
	e.Settings.Roles[role] = next
}

// MergeSettings computes new settings without touching existing.
func MergeSettings(existing v1beta1.Settings, triples []Triple, replace bool) v1beta1.Settings {
	next := v1beta1.Settings{}
	if !replace {
		for k, v := range existing {
			next[k] = v
		}
	}
	for _, t := range triples {
		if t.Value == "" {
			delete(next, t.Key)
			continue
		}
		next[t.Key] = t.Value
	}
	return next
}

func applyRoleResources(r Resources, role func(string) (*v1beta1.RoleSpec, error)) error {
	type field struct {
		flag   *string
		memory bool
		limit  bool
	}
	for _, f := range []field{
		{r.MemoryRequest, true, false},
		{r.CoresRequest, false, false},
		{r.MemoryLimit, true, true},
		{r.CoresLimit, false, true},
	} {
		if f.flag == nil {
			continue
		}
		triples, err := ParseRoleValues(*f.flag)
		if err != nil {
			return err
		}
		for _, t := range triples {
			spec, err := role(t.Role)
			if err != nil {
				return err
			}
			res := spec.EnsureResources()
			list := res.Requests
			if f.limit {
				list = res.Limits
			}
			if f.memory {
				list.Memory = t.Value
			} else {
				list.CPU = t.Value
			}
			compact(spec)
		}
	}
	return nil
}

// compact drops empty request and limit lists so cleared values leave no trace.
func compact(spec *v1beta1.RoleSpec) {
	if spec.Resources == nil {
		return
	}
	if spec.Resources.Requests.IsEmpty() {
		spec.Resources.Requests = nil
	}
	if spec.Resources.Limits.IsEmpty() {
		spec.Resources.Limits = nil
	}
	if spec.Resources.Requests == nil && spec.Resources.Limits == nil {
		spec.Resources = nil
	}
}

func applyStorage(s *v1beta1.Storage, args Storage) {
	for _, f := range []struct {
		area  string
		value *string
		class bool
	}{
		{"data", args.ClassData, true},
		{"logs", args.ClassLogs, true},
		{"backups", args.ClassBackups, true},
		{"datalogs", args.ClassDataLogs, true},
		{"data", args.SizeData, false},
		{"logs", args.SizeLogs, false},
		{"backups", args.SizeBackups, false},
		{"datalogs", args.SizeDataLogs, false},
	} {
		if f.value == nil {
			continue
		}
		v := s.Area(f.area).First()
		if f.class {
			v.ClassName = *f.value
		} else {
			v.Size = *f.value
		}
	}
}

func supported(version int) bool {
	for _, v := range v1beta1.SupportedEngineVersions {
		if v == version {
			return true
		}
	}
	return false
}
