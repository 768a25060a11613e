// Package azure keeps the Azure shadow resources of Arc data services in sync and
// uploads usage records.
package azure

import (
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/config"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const (
	moduleName    = "arcdata/azure"
	moduleVersion = "v1.0.0"

	// DefaultEndpoint is the public cloud resource manager.
	DefaultEndpoint = "https://management.azure.com"
	// APIVersion of the Microsoft.AzureArcData resource provider.
	APIVersion = "2021-07-01-preview"
	// UsageAPIVersion of the usage ingestion service.
	UsageAPIVersion = "2021-06-01-preview"
	// Provider is the resource provider namespace.
	Provider = "Microsoft.AzureArcData"

	ARMScope   = "https://management.azure.com/.default"
	UsageScope = "https://azurearcdata.billing.publiccloudapi.net/.default"

	headerClientRequestID       = "x-ms-client-request-id"
	headerReturnClientRequestID = "x-ms-return-client-request-id"
	headerRequestID             = "X-Request-Id"
	headerCorrelationVector     = "X-Correlation-Vector"
)

// Options configures a Client.
type Options struct {
	Azure config.AzureConfig

	// Credential overrides the credential built from Azure.
	Credential azcore.TokenCredential
	// Transport replaces the HTTP client, used by tests.
	Transport policy.Transporter
	// UsageEndpoint overrides the regional usage ingestion host.
	UsageEndpoint string

	Executor *retry.Executor
	Policy   retry.Policy
	Logger   *zap.Logger
}

// Client talks to the resource manager and the usage ingestion service.
type Client struct {
	endpoint      string
	usageEndpoint string
	arm           runtime.Pipeline
	usage         runtime.Pipeline
	executor      *retry.Executor
	policy        retry.Policy
	logger        *zap.Logger
}

// NewClient builds a client. Without an explicit credential a service principal
// from the SPN_* settings is used when complete, otherwise the default Azure
// credential chain.
func NewClient(opts Options) (*Client, error) {
	cred := opts.Credential
	if cred == nil {
		var err error
		cred, err = NewCredential(opts.Azure)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := strings.TrimRight(opts.Azure.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	executor := opts.Executor
	if executor == nil {
		executor = retry.NewExecutor(logger, nil)
	}
	p := opts.Policy
	if p.MaxAttempts == 0 {
		p = retry.NewPolicy("azure", retry.DefaultAttempts, retry.DefaultDelay, retry.Network)
	}
	return &Client{
		endpoint:      endpoint,
		usageEndpoint: strings.TrimRight(opts.UsageEndpoint, "/"),
		arm:           newPipeline(cred, ARMScope, opts.Transport, requestIDPolicy{header: headerClientRequestID, echo: true}),
		usage:         newPipeline(cred, UsageScope, opts.Transport, requestIDPolicy{header: headerRequestID}),
		executor:      executor,
		policy:        p,
		logger:        logger,
	}, nil
}

// NewCredential picks the credential for cfg.
func NewCredential(cfg config.AzureConfig) (azcore.TokenCredential, error) {
	if cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		return cred, errors.Wrap(err, "create service principal credential")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	return cred, errors.Wrap(err, "create default azure credential")
}

// newPipeline disables the SDK retry policy so that the executor alone decides
// what is retried.
func newPipeline(cred azcore.TokenCredential, scope string, transport policy.Transporter, id requestIDPolicy) runtime.Pipeline {
	return runtime.NewPipeline(moduleName, moduleVersion,
		runtime.PipelineOptions{
			PerCall:  []policy.Policy{id},
			PerRetry: []policy.Policy{runtime.NewBearerTokenPolicy(cred, []string{scope}, nil)},
		},
		&policy.ClientOptions{
			Retry:     policy.RetryOptions{MaxRetries: -1},
			Transport: transport,
		})
}

// requestIDPolicy stamps every request with a fresh id for service-side tracing.
type requestIDPolicy struct {
	header string
	echo   bool
}

func (p requestIDPolicy) Do(req *policy.Request) (*http.Response, error) {
	raw := req.Raw()
	if raw.Header.Get(p.header) == "" {
		raw.Header.Set(p.header, uuid.NewString())
	}
	if p.echo {
		raw.Header.Set(headerReturnClientRequestID, "true")
	}
	return req.Next()
}
