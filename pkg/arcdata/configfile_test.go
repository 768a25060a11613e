package arcdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/arcdata-cli/pkg/patch"
	"github.com/microsoft/arcdata-cli/pkg/retry"
	"github.com/microsoft/arcdata-cli/pkg/validation"
)

func writeCustomResource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pg1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"apiVersion": "arcdata.microsoft.com/v1beta1",
		"kind": "postgresql",
		"metadata": {"name": "pg1"},
		"spec": {"engine": {"version": 12}, "services": {"primary": {"type": "LoadBalancer", "port": 5432}}}
	}`), 0o600))
	return path
}

func TestConfigAddAndRemove(t *testing.T) {
	env := newTestEnv(t, nil)
	path := writeCustomResource(t)

	doc, err := env.handler.ConfigAdd(path, `spec.scale.workers=2,metadata.labels={"team":"data"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"team": "data"}, doc["metadata"].(map[string]interface{})["labels"])
	assert.Contains(t, env.out.String(), `"workers": 2`)

	stored, err := patch.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored["spec"].(map[string]interface{})["scale"].(map[string]interface{})["workers"])

	_, err = env.handler.ConfigRemove(path, "spec.scale,metadata.labels")
	require.NoError(t, err)
	stored, err = patch.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, stored["spec"], "scale")
	assert.NotContains(t, stored["metadata"], "labels")

	_, err = env.handler.ConfigRemove(path, "")
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.Classify(err))
}

func TestConfigEditsKeepDocumentValid(t *testing.T) {
	env := newTestEnv(t, nil)
	path := writeCustomResource(t)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = env.handler.ConfigRemove(path, "metadata.name")
	require.Error(t, err)
	assert.True(t, validation.IsValidation(err))
	assert.Contains(t, err.Error(), `missing required key "metadata.name"`)

	_, err = env.handler.ConfigReplace(path, "spec.missing.key=1")
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestConfigPatch(t *testing.T) {
	env := newTestEnv(t, nil)
	path := writeCustomResource(t)
	patchFile := filepath.Join(t.TempDir(), "patch.json")
	require.NoError(t, os.WriteFile(patchFile, []byte(`{"patch": [
		{"op": "replace", "path": "spec.services.primary.port", "value": 5433},
		{"op": "add", "path": "spec.engine.extensions", "value": [{"name": "citus"}]}
	]}`), 0o600))

	doc, err := env.handler.ConfigPatch(path, patchFile)
	require.NoError(t, err)
	spec := doc["spec"].(map[string]interface{})
	assert.Equal(t, int64(5433), spec["services"].(map[string]interface{})["primary"].(map[string]interface{})["port"])
	assert.Len(t, spec["engine"].(map[string]interface{})["extensions"], 1)

	_, err = env.handler.ConfigPatch(path, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
