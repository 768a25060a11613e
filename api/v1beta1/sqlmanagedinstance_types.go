package v1beta1

import (
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	// SQLManagedInstanceNameMaxLength bounds managed instance names.
	SQLManagedInstanceNameMaxLength = 13

	TierGeneralPurpose   = "GeneralPurpose"
	TierBusinessCritical = "BusinessCritical"

	LicenseBasePrice       = "BasePrice"
	LicenseLicenseIncluded = "LicenseIncluded"
)

// SQLManagedInstance is an Azure Arc enabled SQL managed instance.
type SQLManagedInstance struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SQLManagedInstanceSpec `json:"spec"`
	Status *Status                `json:"status,omitempty"`
}

// SQLManagedInstanceSpec is spec of a managed instance. Only the default
// scheduling bucket exists.
type SQLManagedInstanceSpec struct {
	Replicas    *int32         `json:"replicas,omitempty"`
	ServiceType string         `json:"serviceType,omitempty"`
	Tier        string         `json:"tier,omitempty"`
	LicenseType string         `json:"licenseType,omitempty"`
	Scheduling  *SQLScheduling `json:"scheduling,omitempty"`
	Storage     *Storage       `json:"storage,omitempty"`
	Services    *Services      `json:"services,omitempty"`
	Dev         bool           `json:"dev,omitempty"`
}

// SQLScheduling is spec.scheduling of a managed instance.
type SQLScheduling struct {
	Default *RoleSpec `json:"default,omitempty"`
}

// NewSQLManagedInstance returns the default managed instance template.
func NewSQLManagedInstance() *SQLManagedInstance {
	return &SQLManagedInstance{
		TypeMeta: metav1.TypeMeta{APIVersion: SQLGroupVersion.String(), Kind: SQLManagedInstanceKind},
		Spec: SQLManagedInstanceSpec{
			Tier:        TierGeneralPurpose,
			LicenseType: LicenseLicenseIncluded,
			Storage: &Storage{
				Data: &VolumeSet{Volumes: []Volume{{Size: "5Gi"}}},
				Logs: &VolumeSet{Volumes: []Volume{{Size: "5Gi"}}},
			},
		},
	}
}

// SQLManagedInstanceFromMap hydrates a managed instance from a document.
func SQLManagedInstanceFromMap(m map[string]interface{}) (*SQLManagedInstance, error) {
	mi := &SQLManagedInstance{}
	if err := fromMap(m, mi); err != nil {
		return nil, err
	}
	return mi, nil
}

// ToMap renders the managed instance as a document.
func (mi *SQLManagedInstance) ToMap() (map[string]interface{}, error) { return toMap(mi) }

// ToUnstructured renders the managed instance for the dynamic client.
func (mi *SQLManagedInstance) ToUnstructured() (*unstructured.Unstructured, error) {
	return toUnstructured(mi)
}

// DefaultRole returns the default scheduling bucket, allocating it when missing.
func (mi *SQLManagedInstance) DefaultRole() *RoleSpec {
	if mi.Spec.Scheduling == nil {
		mi.Spec.Scheduling = &SQLScheduling{}
	}
	if mi.Spec.Scheduling.Default == nil {
		mi.Spec.Scheduling.Default = &RoleSpec{}
	}
	return mi.Spec.Scheduling.Default
}

// CanonicalTier maps tier aliases (gp, bc) and any casing to the canonical name.
// Unknown tiers are returned unchanged.
func CanonicalTier(tier string) string {
	switch strings.ToLower(tier) {
	case "gp", "generalpurpose":
		return TierGeneralPurpose
	case "bc", "businesscritical":
		return TierBusinessCritical
	}
	return tier
}

// CanonicalLicenseType maps any casing of a license type to the canonical name.
func CanonicalLicenseType(license string) string {
	switch strings.ToLower(license) {
	case strings.ToLower(LicenseBasePrice):
		return LicenseBasePrice
	case strings.ToLower(LicenseLicenseIncluded):
		return LicenseLicenseIncluded
	}
	return license
}
