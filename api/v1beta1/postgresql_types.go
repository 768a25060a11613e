package v1beta1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/utils/ptr"
)

const (
	// PostgreSQLNameMaxLength bounds server group names.
	PostgreSQLNameMaxLength = 10
	// DefaultEngineVersion is used when no --engine-version is given.
	DefaultEngineVersion = 12
	// CitusExtension is required by sharded or replicated server groups.
	CitusExtension = "citus"
)

// SupportedEngineVersions lists the Postgres major versions the controller can run.
var SupportedEngineVersions = []int{11, 12}

// Postgres roles addressable by scheduling and engine settings.
const (
	RoleDefault     = "default"
	RoleCoordinator = "coordinator"
	RoleWorker      = "worker"
	RoleMonitor     = "monitor"
	RoleProxy       = "proxy"
)

// PostgreSQL is an Azure Arc enabled PostgreSQL Hyperscale server group.
type PostgreSQL struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PostgreSQLSpec `json:"spec"`
	Status *Status        `json:"status,omitempty"`
}

// PostgreSQLSpec is spec of a server group.
type PostgreSQLSpec struct {
	Engine     Engine              `json:"engine"`
	Scale      *Scale              `json:"scale,omitempty"`
	Scheduling *PostgresScheduling `json:"scheduling,omitempty"`
	Storage    *Storage            `json:"storage,omitempty"`
	Services   *Services           `json:"services,omitempty"`
	Dev        bool                `json:"dev,omitempty"`
}

// Engine is spec.engine.
type Engine struct {
	Version    int             `json:"version,omitempty"`
	Extensions []Extension     `json:"extensions,omitempty"`
	Settings   *EngineSettings `json:"settings,omitempty"`
}

// Extension is one entry of spec.engine.extensions.
type Extension struct {
	Name string `json:"name"`
}

// EngineSettings holds postgresql.conf overrides for the default bucket and per role.
type EngineSettings struct {
	Default Settings            `json:"default,omitempty"`
	Roles   map[string]Settings `json:"roles,omitempty"`
}

// Scale is spec.scale.
type Scale struct {
	Workers  *int32 `json:"workers,omitempty"`
	Replicas *int32 `json:"replicas,omitempty"`
}

// PostgresScheduling is spec.scheduling.
type PostgresScheduling struct {
	Default *RoleSpec      `json:"default,omitempty"`
	Roles   *PostgresRoles `json:"roles,omitempty"`
}

// PostgresRoles holds per-role scheduling.
type PostgresRoles struct {
	Coordinator *RoleSpec `json:"coordinator,omitempty"`
	Worker      *RoleSpec `json:"worker,omitempty"`
	Monitor     *RoleSpec `json:"monitor,omitempty"`
	Proxy       *RoleSpec `json:"proxy,omitempty"`
}

// NewPostgreSQL returns the default server group template: a 256Mi memory request
// and 5Gi data, logs and backups volumes.
func NewPostgreSQL() *PostgreSQL {
	return &PostgreSQL{
		TypeMeta: metav1.TypeMeta{APIVersion: ArcGroupVersion.String(), Kind: PostgreSQLKind},
		Spec: PostgreSQLSpec{
			Scheduling: &PostgresScheduling{
				Default: &RoleSpec{Resources: &Resources{Requests: &ResourceList{Memory: "256Mi"}}},
			},
			Storage: &Storage{
				Data:    &VolumeSet{Volumes: []Volume{{Size: "5Gi"}}},
				Logs:    &VolumeSet{Volumes: []Volume{{Size: "5Gi"}}},
				Backups: &VolumeSet{Volumes: []Volume{{Size: "5Gi"}}},
			},
		},
	}
}

// PostgreSQLFromMap hydrates a server group from a document.
func PostgreSQLFromMap(m map[string]interface{}) (*PostgreSQL, error) {
	pg := &PostgreSQL{}
	if err := fromMap(m, pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// ToMap renders the server group as a document.
func (pg *PostgreSQL) ToMap() (map[string]interface{}, error) { return toMap(pg) }

// ToUnstructured renders the server group for the dynamic client.
func (pg *PostgreSQL) ToUnstructured() (*unstructured.Unstructured, error) { return toUnstructured(pg) }

// Role returns the scheduling of role, allocating it when missing. role is one of
// the Role constants; anything else returns nil.
func (s *PostgresScheduling) Role(role string) *RoleSpec {
	if role == RoleDefault {
		if s.Default == nil {
			s.Default = &RoleSpec{}
		}
		return s.Default
	}
	if s.Roles == nil {
		s.Roles = &PostgresRoles{}
	}
	var slot **RoleSpec
	switch role {
	case RoleCoordinator:
		slot = &s.Roles.Coordinator
	case RoleWorker:
		slot = &s.Roles.Worker
	case RoleMonitor:
		slot = &s.Roles.Monitor
	case RoleProxy:
		slot = &s.Roles.Proxy
	default:
		return nil
	}
	if *slot == nil {
		*slot = &RoleSpec{}
	}
	return *slot
}

// AllRoles returns every role that has scheduling set, keyed by role name.
func (s *PostgresScheduling) AllRoles() map[string]*RoleSpec {
	out := map[string]*RoleSpec{}
	if s == nil {
		return out
	}
	if s.Default != nil {
		out[RoleDefault] = s.Default
	}
	if s.Roles != nil {
		for name, r := range map[string]*RoleSpec{
			RoleCoordinator: s.Roles.Coordinator,
			RoleWorker:      s.Roles.Worker,
			RoleMonitor:     s.Roles.Monitor,
			RoleProxy:       s.Roles.Proxy,
		} {
			if r != nil {
				out[name] = r
			}
		}
	}
	return out
}

// ExtensionNames returns the enabled extension names in order.
func (e *Engine) ExtensionNames() []string {
	out := make([]string, 0, len(e.Extensions))
	for _, x := range e.Extensions {
		out = append(out, x.Name)
	}
	return out
}

// SetExtensions replaces the extension list.
func (e *Engine) SetExtensions(names []string) {
	e.Extensions = make([]Extension, 0, len(names))
	for _, n := range names {
		e.Extensions = append(e.Extensions, Extension{Name: n})
	}
}

// HasExtension reports whether name is enabled.
func (e *Engine) HasExtension(name string) bool {
	for _, x := range e.Extensions {
		if x.Name == name {
			return true
		}
	}
	return false
}

// Workers returns spec.scale.workers, 0 when unset.
func (pg *PostgreSQL) Workers() int32 {
	if pg.Spec.Scale == nil {
		return 0
	}
	return ptr.Deref(pg.Spec.Scale.Workers, 0)
}

// Replicas returns spec.scale.replicas, 1 when unset.
func (pg *PostgreSQL) Replicas() int32 {
	if pg.Spec.Scale == nil {
		return 1
	}
	return ptr.Deref(pg.Spec.Scale.Replicas, 1)
}

// EnsureCitus puts citus first in the extension list when the server group is
// sharded or replicated.
func (pg *PostgreSQL) EnsureCitus() {
	if pg.Workers() <= 0 && pg.Replicas() <= 1 {
		return
	}
	if pg.Spec.Engine.HasExtension(CitusExtension) {
		return
	}
	pg.Spec.Engine.SetExtensions(append([]string{CitusExtension}, pg.Spec.Engine.ExtensionNames()...))
}
