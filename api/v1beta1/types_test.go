package v1beta1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestPostgreSQLTemplateToMap(t *testing.T) {
	pg := NewPostgreSQL()
	pg.Name = "pg1"

	m, err := pg.ToMap()
	require.NoError(t, err)

	assert.Equal(t, "arcdata.microsoft.com/v1beta1", m["apiVersion"])
	assert.Equal(t, "postgresql", m["kind"])
	spec := m["spec"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{
		"default": map[string]interface{}{
			"resources": map[string]interface{}{
				"requests": map[string]interface{}{"memory": "256Mi"},
			},
		},
	}, spec["scheduling"])
	assert.NotContains(t, m, "status")
}

func TestPostgreSQLFromMap(t *testing.T) {
	pg, err := PostgreSQLFromMap(map[string]interface{}{
		"apiVersion": "arcdata.microsoft.com/v1beta1",
		"kind":       "postgresql",
		"metadata":   map[string]interface{}{"name": "pg1", "namespace": "arc", "generation": int64(3)},
		"spec": map[string]interface{}{
			"engine": map[string]interface{}{
				"version":    int64(11),
				"extensions": []interface{}{map[string]interface{}{"name": "postgis"}},
				"settings": map[string]interface{}{
					"default": map[string]interface{}{"max_connections": int64(100), "ssl": true},
				},
			},
			"scale":   map[string]interface{}{"workers": int64(2)},
			"unknown": "dropped",
		},
		"status": map[string]interface{}{"state": "Ready", "observedGeneration": int64(3)},
	})
	require.NoError(t, err)

	assert.Equal(t, "pg1", pg.Name)
	assert.Equal(t, int64(3), pg.Generation)
	assert.Equal(t, 11, pg.Spec.Engine.Version)
	assert.Equal(t, []string{"postgis"}, pg.Spec.Engine.ExtensionNames())
	assert.Equal(t, Settings{"max_connections": "100", "ssl": "true"}, pg.Spec.Engine.Settings.Default)
	assert.Equal(t, int32(2), pg.Workers())
	assert.Equal(t, int32(1), pg.Replicas())
	assert.Equal(t, "Ready", pg.Status.State)
}

func TestEnsureCitus(t *testing.T) {
	pg := NewPostgreSQL()
	pg.Spec.Engine.SetExtensions([]string{"postgis"})
	pg.EnsureCitus()
	assert.Equal(t, []string{"postgis"}, pg.Spec.Engine.ExtensionNames())

	pg.Spec.Scale = &Scale{Workers: ptr.To[int32](2)}
	pg.EnsureCitus()
	pg.EnsureCitus()
	assert.Equal(t, []string{"citus", "postgis"}, pg.Spec.Engine.ExtensionNames())

	pg = NewPostgreSQL()
	pg.Spec.Scale = &Scale{Replicas: ptr.To[int32](2)}
	pg.EnsureCitus()
	assert.Equal(t, []string{"citus"}, pg.Spec.Engine.ExtensionNames())
}

func TestSchedulingRole(t *testing.T) {
	s := &PostgresScheduling{}
	s.Role(RoleCoordinator).EnsureResources().Limits.Memory = "2Gi"
	assert.Equal(t, "2Gi", s.Roles.Coordinator.Resources.Limits.Memory)
	assert.Nil(t, s.Role("gateway"))
	assert.Len(t, s.AllRoles(), 1)
}

func TestCanonicalTierAndLicense(t *testing.T) {
	assert.Equal(t, TierGeneralPurpose, CanonicalTier("gp"))
	assert.Equal(t, TierBusinessCritical, CanonicalTier("BUSINESSCRITICAL"))
	assert.Equal(t, "premium", CanonicalTier("premium"))
	assert.Equal(t, LicenseBasePrice, CanonicalLicenseType("baseprice"))
}

func TestStorageClassNames(t *testing.T) {
	s := &Storage{}
	s.Area("data").First().ClassName = "fast"
	s.Area("logs").First().ClassName = "slow"
	s.Area("backups")
	assert.Nil(t, s.Area("archive"))
	assert.Equal(t, []string{"fast", "slow"}, s.ClassNames())
}

func TestDataControllerHelpers(t *testing.T) {
	dc, err := DataControllerFromMap(map[string]interface{}{
		"metadata": map[string]interface{}{"name": "arc-dc"},
		"spec": map[string]interface{}{
			"services": []interface{}{
				map[string]interface{}{"name": "Controller", "serviceType": "LoadBalancer", "port": int64(30080)},
			},
			"settings": map[string]interface{}{
				"azure": map[string]interface{}{"connectionMode": "Indirect"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "LoadBalancer", dc.ControllerService().ServiceType)
	assert.Equal(t, "arc-dc", dc.DisplayName())
	assert.False(t, dc.IsDirect())
}

func TestNewExportTask(t *testing.T) {
	end := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	task := NewExportTask("arc", ExportUsage, end.Add(-time.Hour), end, time.UnixMilli(1614834367123))
	assert.Equal(t, "export-usage-2021-03-04-05-06-07-1614834367123", task.Name)
	assert.Equal(t, "tasks.arcdata.microsoft.com/v1beta1", task.APIVersion)
	assert.Equal(t, "2021-03-04T05:06:07Z", task.Spec.EndTime)
}
