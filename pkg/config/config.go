// Package config resolves CLI settings from defaults, a YAML file, a .env file,
// the environment and command line flags, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/poll"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// Config controls how commands reach the cluster, Azure and the object store.
type Config struct {
	Kubeconfig string
	Namespace  string

	LogFormat string
	LogLevel  string

	RetryAttempts    int
	RetryInterval    time.Duration
	PollInterval     time.Duration
	ProgressInterval time.Duration
	ExportAttempts   int
	ExportInterval   time.Duration

	MetricsPath string
	// StateDir holds the export watermarks of the last successful uploads.
	StateDir string

	// ControllerEndpoint overrides the controller service URL read from the data
	// controller status.
	ControllerEndpoint string
	ControllerInsecure bool

	Username string
	Password string
	// PostgresDevelopment marks new server groups as dev instances.
	PostgresDevelopment bool

	Azure       AzureConfig
	ObjectStore ObjectStoreConfig
}

// AzureConfig addresses the resource manager.
type AzureConfig struct {
	SubscriptionID string
	ResourceGroup  string
	Location       string
	// Endpoint replaces the management endpoint, for test resource providers.
	Endpoint string
	// Service principal used instead of the default credential chain when set.
	TenantID     string
	ClientID     string
	ClientSecret string
}

// ObjectStoreConfig selects where export archives are uploaded.
type ObjectStoreConfig struct {
	Provider           string
	Bucket             string
	Prefix             string
	Region             string
	Endpoint           string
	AccessKey          string
	SecretKey          string
	SessionToken       string
	S3PathStyle        bool
	Insecure           bool
	GCPProject         string
	GCPCredentialsFile string
	GCPCredentialsJSON string
	AzureAccount       string
	AzureKey           string
	AzureEndpoint      string
	AzureSASToken      string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Namespace:        "arc",
		LogFormat:        "console",
		LogLevel:         "info",
		RetryAttempts:    retry.DefaultAttempts,
		RetryInterval:    retry.DefaultDelay,
		PollInterval:     poll.DefaultInterval,
		ProgressInterval: poll.DefaultProgressEvery,
		ExportAttempts:   poll.ExportAttempts,
		ExportInterval:   poll.ExportInterval,
		StateDir:         expandPath("~/.arcdata"),
	}
}

// Load resolves defaults, the YAML file named by --config or ARCDATA_CONFIG, the
// nearest .env file and the environment. Flags are applied afterwards by parsing a
// FlagSet populated with BindFlags.
func Load(args []string) (*Config, error) {
	cfg := Default()
	if err := loadEnvFile(); err != nil {
		return nil, errors.Wrap(err, "load .env")
	}
	if path := detectConfigPath(args, os.Getenv("ARCDATA_CONFIG")); path != "" {
		fileCfg, err := loadFileConfig(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
		if err := applyFileConfig(cfg, fileCfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	cfg.Kubeconfig = envOrDefault("KUBECONFIG", cfg.Kubeconfig)
	cfg.Namespace = envOrDefault("ARCDATA_NAMESPACE", cfg.Namespace)
	cfg.LogFormat = envOrDefault("ARCDATA_LOG_FORMAT", cfg.LogFormat)
	cfg.LogLevel = envOrDefault("ARCDATA_LOG_LEVEL", cfg.LogLevel)
	cfg.RetryAttempts = envOrDefaultInt("ARCDATA_RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryInterval = envOrDefaultDuration("ARCDATA_RETRY_INTERVAL", cfg.RetryInterval)
	cfg.PollInterval = envOrDefaultDuration("ARCDATA_POLL_INTERVAL", cfg.PollInterval)
	cfg.ProgressInterval = envOrDefaultDuration("ARCDATA_PROGRESS_INTERVAL", cfg.ProgressInterval)
	cfg.MetricsPath = envOrDefault("ARCDATA_METRICS_PATH", cfg.MetricsPath)
	cfg.StateDir = envOrDefault("ARCDATA_STATE_DIR", cfg.StateDir)
	cfg.ControllerEndpoint = envOrDefault("ARCDATA_CONTROLLER_ENDPOINT", cfg.ControllerEndpoint)
	cfg.ControllerInsecure = envOrDefaultBool("ARCDATA_CONTROLLER_INSECURE", cfg.ControllerInsecure)

	cfg.Username = envOrDefault("AZDATA_USERNAME", cfg.Username)
	cfg.Password = envOrDefault("AZDATA_PASSWORD", cfg.Password)
	cfg.PostgresDevelopment = envOrDefaultBool("PG_IS_DEVELOPMENT", cfg.PostgresDevelopment)

	cfg.Azure.SubscriptionID = envOrDefault("AZURE_SUBSCRIPTION_ID", cfg.Azure.SubscriptionID)
	cfg.Azure.ResourceGroup = envOrDefault("AZURE_RESOURCE_GROUP", cfg.Azure.ResourceGroup)
	cfg.Azure.Location = envOrDefault("AZURE_LOCATION", cfg.Azure.Location)
	cfg.Azure.Endpoint = envOrDefault("RP_TEST_ENDPOINT", cfg.Azure.Endpoint)
	cfg.Azure.TenantID = envOrDefault("SPN_TENANT_ID", cfg.Azure.TenantID)
	cfg.Azure.ClientID = envOrDefault("SPN_CLIENT_ID", cfg.Azure.ClientID)
	cfg.Azure.ClientSecret = envOrDefault("SPN_CLIENT_SECRET", cfg.Azure.ClientSecret)

	o := &cfg.ObjectStore
	o.Provider = envOrDefault("ARCDATA_OBJECTSTORE_PROVIDER", o.Provider)
	o.Bucket = envOrDefault("ARCDATA_OBJECTSTORE_BUCKET", o.Bucket)
	o.Prefix = envOrDefault("ARCDATA_OBJECTSTORE_PREFIX", o.Prefix)
	o.Region = envOrDefault("ARCDATA_OBJECTSTORE_REGION", o.Region)
	o.Endpoint = envOrDefault("ARCDATA_OBJECTSTORE_ENDPOINT", o.Endpoint)
	o.AccessKey = envOrDefault("ARCDATA_OBJECTSTORE_ACCESS_KEY", o.AccessKey)
	o.SecretKey = envOrDefault("ARCDATA_OBJECTSTORE_SECRET_KEY", o.SecretKey)
	o.SessionToken = envOrDefault("ARCDATA_OBJECTSTORE_SESSION_TOKEN", o.SessionToken)
	o.S3PathStyle = envOrDefaultBool("ARCDATA_OBJECTSTORE_S3_PATH_STYLE", o.S3PathStyle)
	o.Insecure = envOrDefaultBool("ARCDATA_OBJECTSTORE_INSECURE", o.Insecure)
	o.GCPProject = envOrDefault("ARCDATA_OBJECTSTORE_GCP_PROJECT", o.GCPProject)
	o.GCPCredentialsFile = envOrDefault("ARCDATA_OBJECTSTORE_GCP_CREDENTIALS_FILE", o.GCPCredentialsFile)
	o.GCPCredentialsJSON = envOrDefault("ARCDATA_OBJECTSTORE_GCP_CREDENTIALS_JSON", o.GCPCredentialsJSON)
	o.AzureAccount = envOrDefault("ARCDATA_OBJECTSTORE_AZURE_ACCOUNT", o.AzureAccount)
	o.AzureKey = envOrDefault("ARCDATA_OBJECTSTORE_AZURE_KEY", o.AzureKey)
	o.AzureEndpoint = envOrDefault("ARCDATA_OBJECTSTORE_AZURE_ENDPOINT", o.AzureEndpoint)
	o.AzureSASToken = envOrDefault("ARCDATA_OBJECTSTORE_AZURE_SAS_TOKEN", o.AzureSASToken)
}

// BindFlags registers the global flags on fs, using the resolved values as
// defaults so that an explicit flag wins over everything else.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.StringVar(&c.Kubeconfig, "kubeconfig", c.Kubeconfig, "path to kubeconfig")
	fs.StringVarP(&c.Namespace, "namespace", "n", c.Namespace, "Kubernetes namespace of the data controller")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: console|json")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug|info|warn|error")
	fs.IntVar(&c.RetryAttempts, "retry-attempts", c.RetryAttempts, "attempts per cluster or service call")
	fs.DurationVar(&c.RetryInterval, "retry-interval", c.RetryInterval, "delay between attempts")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "delay between readiness checks")
	fs.StringVar(&c.MetricsPath, "metrics-path", c.MetricsPath, "write Prometheus metrics to this file on exit")
	fs.StringVar(&c.StateDir, "state-dir", c.StateDir, "directory holding export watermarks")
	fs.StringVar(&c.ControllerEndpoint, "controller-endpoint", c.ControllerEndpoint, "controller service URL override")
	fs.BoolVar(&c.ControllerInsecure, "controller-insecure", c.ControllerInsecure, "skip TLS verification of the controller service")
}

// Validate rejects settings no command can work with.
func (c *Config) Validate() error {
	if c.RetryAttempts < 1 {
		return errors.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.ExportAttempts < 1 {
		return errors.Errorf("export attempts must be at least 1, got %d", c.ExportAttempts)
	}
	for name, d := range map[string]time.Duration{
		"retry interval":    c.RetryInterval,
		"poll interval":     c.PollInterval,
		"progress interval": c.ProgressInterval,
		"export interval":   c.ExportInterval,
	} {
		if d < 0 {
			return errors.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

// RetryPolicy builds the policy of one call site.
func (c *Config) RetryPolicy(operation string, retryable retry.KindSet) retry.Policy {
	return retry.NewPolicy(operation, c.RetryAttempts, c.RetryInterval, retryable)
}

// Poller builds a readiness poller for resource. Fetches retry network errors.
func (c *Config) Poller(resource string, exec *retry.Executor, logger *zap.Logger, observer poll.Observer) *poll.Poller {
	return &poll.Poller{
		Resource:      resource,
		Executor:      exec,
		Policy:        c.RetryPolicy("get "+resource, retry.Network),
		Interval:      c.PollInterval,
		ProgressEvery: c.ProgressInterval,
		Logger:        logger,
		Observer:      observer,
	}
}

// ExportPoller is Poller with the export task cadence.
func (c *Config) ExportPoller(exec *retry.Executor, logger *zap.Logger, observer poll.Observer) *poll.Poller {
	p := c.Poller("export task", exec, logger, observer)
	p.Interval = c.ExportInterval
	return p
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}

// loadEnvFile loads the nearest .env file walking up from the working directory.
// Variables already set in the process environment win.
func loadEnvFile() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			return godotenv.Load(envFile)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}
