package v1beta1

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// ResourceList holds Kubernetes quantities as written by the user, e.g. "2Gi".
type ResourceList struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// IsEmpty reports whether neither quantity is set.
func (r *ResourceList) IsEmpty() bool {
	return r == nil || (r.CPU == "" && r.Memory == "")
}

// Resources is the requests/limits pair of a role.
type Resources struct {
	Requests *ResourceList `json:"requests,omitempty"`
	Limits   *ResourceList `json:"limits,omitempty"`
}

// RoleSpec is the scheduling of one role, or of the default bucket.
type RoleSpec struct {
	Resources *Resources `json:"resources,omitempty"`
}

// EnsureResources returns the role's resources, allocating empty lists as needed.
func (r *RoleSpec) EnsureResources() *Resources {
	if r.Resources == nil {
		r.Resources = &Resources{}
	}
	if r.Resources.Requests == nil {
		r.Resources.Requests = &ResourceList{}
	}
	if r.Resources.Limits == nil {
		r.Resources.Limits = &ResourceList{}
	}
	return r.Resources
}

// Volume is one persistent volume claim template.
type Volume struct {
	ClassName  string `json:"className,omitempty"`
	Size       string `json:"size,omitempty"`
	AccessMode string `json:"accessMode,omitempty"`
	ClaimName  string `json:"claimName,omitempty"`
}

// VolumeSet groups the volumes of one storage area.
type VolumeSet struct {
	Volumes []Volume `json:"volumes,omitempty"`
}

// First returns the first volume, creating it when the set is empty.
func (v *VolumeSet) First() *Volume {
	if len(v.Volumes) == 0 {
		v.Volumes = append(v.Volumes, Volume{})
	}
	return &v.Volumes[0]
}

// Storage lists the storage areas of an instance. SQL managed instances use
// DataLogs in addition to Data and Logs.
type Storage struct {
	Data     *VolumeSet `json:"data,omitempty"`
	Logs     *VolumeSet `json:"logs,omitempty"`
	Backups  *VolumeSet `json:"backups,omitempty"`
	DataLogs *VolumeSet `json:"datalogs,omitempty"`

	VolumeClaimMounts []VolumeClaimMount `json:"volumeClaimMounts,omitempty"`
}

// VolumeTypeBackup marks a claim mount holding backups.
const VolumeTypeBackup = "backup"

// VolumeClaimMount mounts an existing claim into the instance pods.
type VolumeClaimMount struct {
	VolumeClaimName string `json:"volumeClaimName"`
	VolumeType      string `json:"volumeType"`
}

// BackupClaim returns the name of the claim mounted as backup volume, or "".
func (s *Storage) BackupClaim() string {
	if s == nil {
		return ""
	}
	for _, m := range s.VolumeClaimMounts {
		if m.VolumeType == VolumeTypeBackup {
			return m.VolumeClaimName
		}
	}
	return ""
}

// Area returns the named storage area, allocating it when missing. Unknown names
// return nil.
func (s *Storage) Area(name string) *VolumeSet {
	var slot **VolumeSet
	switch name {
	case "data":
		slot = &s.Data
	case "logs":
		slot = &s.Logs
	case "backups":
		slot = &s.Backups
	case "datalogs":
		slot = &s.DataLogs
	default:
		return nil
	}
	if *slot == nil {
		*slot = &VolumeSet{}
	}
	return *slot
}

// ClassNames returns every storage class referenced by the storage spec.
func (s *Storage) ClassNames() []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, set := range []*VolumeSet{s.Data, s.Logs, s.Backups, s.DataLogs} {
		if set == nil {
			continue
		}
		for _, v := range set.Volumes {
			if v.ClassName != "" {
				out = append(out, v.ClassName)
			}
		}
	}
	return out
}

// ServiceSpec describes an instance's external service.
type ServiceSpec struct {
	ServiceType string            `json:"serviceType,omitempty"`
	Port        int32             `json:"port,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Services is the service block shared by Postgres and SQL managed instances.
type Services struct {
	Primary *ServiceSpec `json:"primary,omitempty"`
}

// Status is the subset of status fields the CLI reads.
type Status struct {
	State              string `json:"state,omitempty"`
	ObservedGeneration int64  `json:"observedGeneration,omitempty"`
	ExternalEndpoint   string `json:"externalEndpoint,omitempty"`
	ReadyPods          string `json:"readyPods,omitempty"`
	ReadyReplicas      string `json:"readyReplicas,omitempty"`
	Path               string `json:"path,omitempty"`
}

// Settings is a flat string map that also accepts numbers and booleans when
// decoding, since engine settings files often carry them unquoted.
type Settings map[string]string

func (s *Settings) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Settings, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		case nil:
		default:
			return errors.Errorf("setting %q must be a scalar", k)
		}
	}
	*s = out
	return nil
}
