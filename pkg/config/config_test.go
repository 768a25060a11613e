package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

func TestDetectConfigPath(t *testing.T) {
	assert.Equal(t, "env.yaml", detectConfigPath(nil, "env.yaml"))
	assert.Equal(t, "a.yaml", detectConfigPath([]string{"postgres", "--config", "a.yaml"}, "env.yaml"))
	assert.Equal(t, "b.yaml", detectConfigPath([]string{"--config=b.yaml"}, ""))
}

func TestApplyFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kube:
  namespace: data
retry:
  attempts: 3
  interval: 2s
  export_interval: 1m
azure:
  subscription: sub-1
objectstore:
  provider: minio
  insecure: true
`), 0o600))

	fileCfg, err := loadFileConfig(path)
	require.NoError(t, err)
	cfg := Default()
	require.NoError(t, applyFileConfig(cfg, fileCfg))

	assert.Equal(t, "data", cfg.Namespace)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryInterval)
	assert.Equal(t, time.Minute, cfg.ExportInterval)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "sub-1", cfg.Azure.SubscriptionID)
	assert.Equal(t, "minio", cfg.ObjectStore.Provider)
	assert.True(t, cfg.ObjectStore.Insecure)
}

func TestApplyFileConfigRejectsBadDuration(t *testing.T) {
	bad := "soon"
	err := applyFileConfig(Default(), &FileConfig{Retry: &RetryFileConfig{Interval: &bad}})
	assert.ErrorContains(t, err, "retry.interval")
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arcdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kube:\n  namespace: from-file\nlogging:\n  level: debug\n"), 0o600))
	t.Setenv("ARCDATA_NAMESPACE", "from-env")
	t.Setenv("AZDATA_PASSWORD", "S3cret!pass")
	t.Setenv("RP_TEST_ENDPOINT", "https://rp.example.test")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Namespace)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "S3cret!pass", cfg.Password)
	assert.Equal(t, "https://rp.example.test", cfg.Azure.Endpoint)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--namespace", "from-flag", "--retry-attempts", "4"}))
	assert.Equal(t, "from-flag", cfg.Namespace)
	assert.Equal(t, 4, cfg.RetryAttempts)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	cfg.RetryAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestPolicyBuilders(t *testing.T) {
	cfg := Default()
	cfg.RetryAttempts = 7
	cfg.RetryInterval = time.Second

	p := cfg.RetryPolicy("create postgresql", retry.Cluster)
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
	assert.True(t, p.Retryable.Has(retry.KindClusterAPI))

	poller := cfg.ExportPoller(nil, nil, nil)
	assert.Equal(t, cfg.ExportInterval, poller.Interval)
	assert.Equal(t, "get export task", poller.Policy.OperationName)
	assert.False(t, poller.Policy.Retryable.Has(retry.KindClusterAPI))
}
