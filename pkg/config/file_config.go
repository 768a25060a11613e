package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML config file. Absent keys leave the default in place.
type FileConfig struct {
	Kube        *KubeFileConfig        `yaml:"kube"`
	Logging     *LoggingFileConfig     `yaml:"logging"`
	Retry       *RetryFileConfig       `yaml:"retry"`
	Metrics     *MetricsFileConfig     `yaml:"metrics"`
	State       *StateFileConfig       `yaml:"state"`
	Controller  *ControllerFileConfig  `yaml:"controller"`
	Azure       *AzureFileConfig       `yaml:"azure"`
	Objectstore *ObjectstoreFileConfig `yaml:"objectstore"`
}

type KubeFileConfig struct {
	Kubeconfig *string `yaml:"kubeconfig"`
	Namespace  *string `yaml:"namespace"`
}

type LoggingFileConfig struct {
	Format *string `yaml:"format"`
	Level  *string `yaml:"level"`
}

type RetryFileConfig struct {
	Attempts         *int    `yaml:"attempts"`
	Interval         *string `yaml:"interval"`
	PollInterval     *string `yaml:"poll_interval"`
	ProgressInterval *string `yaml:"progress_interval"`
	ExportAttempts   *int    `yaml:"export_attempts"`
	ExportInterval   *string `yaml:"export_interval"`
}

type MetricsFileConfig struct {
	Path *string `yaml:"path"`
}

type StateFileConfig struct {
	Dir *string `yaml:"dir"`
}

type ControllerFileConfig struct {
	Endpoint *string `yaml:"endpoint"`
	Insecure *bool   `yaml:"insecure"`
}

type AzureFileConfig struct {
	Subscription  *string `yaml:"subscription"`
	ResourceGroup *string `yaml:"resource_group"`
	Location      *string `yaml:"location"`
	Endpoint      *string `yaml:"endpoint"`
}

type ObjectstoreFileConfig struct {
	Provider           *string `yaml:"provider"`
	Bucket             *string `yaml:"bucket"`
	Prefix             *string `yaml:"prefix"`
	Region             *string `yaml:"region"`
	Endpoint           *string `yaml:"endpoint"`
	AccessKey          *string `yaml:"access_key"`
	SecretKey          *string `yaml:"secret_key"`
	SessionToken       *string `yaml:"session_token"`
	S3PathStyle        *bool   `yaml:"s3_path_style"`
	Insecure           *bool   `yaml:"insecure"`
	GCPProject         *string `yaml:"gcp_project"`
	GCPCredentialsFile *string `yaml:"gcp_credentials_file"`
	GCPCredentialsJSON *string `yaml:"gcp_credentials_json"`
	AzureAccount       *string `yaml:"azure_account"`
	AzureKey           *string `yaml:"azure_key"`
	AzureEndpoint      *string `yaml:"azure_endpoint"`
	AzureSASToken      *string `yaml:"azure_sas_token"`
}

func detectConfigPath(args []string, envValue string) string {
	path := strings.TrimSpace(envValue)
	for i := 0; i < len(args); i++ {
		arg := strings.TrimSpace(args[i])
		if arg == "--config" {
			if i+1 < len(args) {
				path = strings.TrimSpace(args[i+1])
			}
			continue
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			path = strings.TrimSpace(v)
		}
	}
	return path
}

func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFileConfig(cfg *Config, fileCfg *FileConfig) error {
	if cfg == nil || fileCfg == nil {
		return nil
	}
	if kube := fileCfg.Kube; kube != nil {
		setPath(&cfg.Kubeconfig, kube.Kubeconfig)
		setString(&cfg.Namespace, kube.Namespace)
	}
	if logging := fileCfg.Logging; logging != nil {
		setString(&cfg.LogFormat, logging.Format)
		setString(&cfg.LogLevel, logging.Level)
	}
	if r := fileCfg.Retry; r != nil {
		if r.Attempts != nil {
			cfg.RetryAttempts = *r.Attempts
		}
		if r.ExportAttempts != nil {
			cfg.ExportAttempts = *r.ExportAttempts
		}
		for key, d := range map[string]struct {
			value *string
			into  *time.Duration
		}{
			"retry.interval":          {r.Interval, &cfg.RetryInterval},
			"retry.poll_interval":     {r.PollInterval, &cfg.PollInterval},
			"retry.progress_interval": {r.ProgressInterval, &cfg.ProgressInterval},
			"retry.export_interval":   {r.ExportInterval, &cfg.ExportInterval},
		} {
			if d.value == nil {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(*d.value))
			if err != nil {
				return errors.Wrapf(err, "invalid %s", key)
			}
			*d.into = parsed
		}
	}
	if m := fileCfg.Metrics; m != nil {
		setPath(&cfg.MetricsPath, m.Path)
	}
	if st := fileCfg.State; st != nil {
		setPath(&cfg.StateDir, st.Dir)
	}
	if c := fileCfg.Controller; c != nil {
		setString(&cfg.ControllerEndpoint, c.Endpoint)
		if c.Insecure != nil {
			cfg.ControllerInsecure = *c.Insecure
		}
	}
	if az := fileCfg.Azure; az != nil {
		setString(&cfg.Azure.SubscriptionID, az.Subscription)
		setString(&cfg.Azure.ResourceGroup, az.ResourceGroup)
		setString(&cfg.Azure.Location, az.Location)
		setString(&cfg.Azure.Endpoint, az.Endpoint)
	}
	if obj := fileCfg.Objectstore; obj != nil {
		o := &cfg.ObjectStore
		setString(&o.Provider, obj.Provider)
		setString(&o.Bucket, obj.Bucket)
		setString(&o.Prefix, obj.Prefix)
		setString(&o.Region, obj.Region)
		setString(&o.Endpoint, obj.Endpoint)
		setString(&o.AccessKey, obj.AccessKey)
		setString(&o.SecretKey, obj.SecretKey)
		setString(&o.SessionToken, obj.SessionToken)
		if obj.S3PathStyle != nil {
			o.S3PathStyle = *obj.S3PathStyle
		}
		if obj.Insecure != nil {
			o.Insecure = *obj.Insecure
		}
		setString(&o.GCPProject, obj.GCPProject)
		setPath(&o.GCPCredentialsFile, obj.GCPCredentialsFile)
		setString(&o.GCPCredentialsJSON, obj.GCPCredentialsJSON)
		setString(&o.AzureAccount, obj.AzureAccount)
		setString(&o.AzureKey, obj.AzureKey)
		setString(&o.AzureEndpoint, obj.AzureEndpoint)
		setString(&o.AzureSASToken, obj.AzureSASToken)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setPath(dst *string, v *string) {
	if v != nil {
		*dst = expandPath(*v)
	}
}

func expandPath(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}
	expanded := os.ExpandEnv(trimmed)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return expanded
}
