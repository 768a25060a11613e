// Package controllersvc calls the data controller's REST API for backups and
// export files.
package controllersvc

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

const (
	moduleName    = "arcdata/controller"
	moduleVersion = "v1.0.0"
)

// ErrNoEndpoint is returned when no controller endpoint is configured.
var ErrNoEndpoint = errors.New("controller endpoint is not set")

// Options configures a Client.
type Options struct {
	Endpoint string
	Username string
	Password string
	// Insecure skips verification of the controller's self-signed certificate.
	Insecure bool
	// Transport replaces the HTTP client, used by tests.
	Transport policy.Transporter

	Executor *retry.Executor
	Policy   retry.Policy
	Logger   *zap.Logger
}

// Client is a controller REST client.
type Client struct {
	endpoint string
	pipeline runtime.Pipeline
	executor *retry.Executor
	policy   retry.Policy
	logger   *zap.Logger
}

// NewClient builds a client for the controller at opts.Endpoint.
func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		return nil, retry.Mark(retry.KindValidation, ErrNoEndpoint)
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	transport := opts.Transport
	if transport == nil && opts.Insecure {
		transport = &http.Client{Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // controllers default to self-signed certificates
		}}
	}
	var perCall []policy.Policy
	if opts.Username != "" {
		perCall = append(perCall, basicAuthPolicy{username: opts.Username, password: opts.Password})
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := opts.Policy
	if p.MaxAttempts == 0 {
		p = retry.NewPolicy("controller", retry.DefaultAttempts, retry.DefaultDelay, retry.Network)
	}
	return &Client{
		endpoint: endpoint,
		pipeline: runtime.NewPipeline(moduleName, moduleVersion,
			runtime.PipelineOptions{PerCall: perCall},
			&policy.ClientOptions{
				Retry:     policy.RetryOptions{MaxRetries: -1},
				Transport: transport,
			}),
		executor: opts.Executor,
		policy:   p,
		logger:   logger,
	}, nil
}

type basicAuthPolicy struct {
	username string
	password string
}

func (p basicAuthPolicy) Do(req *policy.Request) (*http.Response, error) {
	token := base64.StdEncoding.EncodeToString([]byte(p.username + ":" + p.password))
	req.Raw().Header.Set("Authorization", "Basic "+token)
	return req.Next()
}

// send runs one request under the client's retry policy. ok lists the accepted
// status codes; any other status becomes a classified error.
func (c *Client) send(ctx context.Context, op, method, target string, ok ...int) (int, []byte, error) {
	type reply struct {
		status int
		body   []byte
	}
	r, err := retry.Do(ctx, c.executor, c.policy.WithName(op), func(ctx context.Context) (reply, error) {
		req, err := runtime.NewRequest(ctx, method, target)
		if err != nil {
			return reply{}, err
		}
		req.Raw().Header.Set("Accept", "application/json")
		resp, err := c.pipeline.Do(req)
		if err != nil {
			return reply{}, err
		}
		defer resp.Body.Close()
		if !runtime.HasStatusCode(resp, ok...) {
			return reply{}, runtime.NewResponseError(resp)
		}
		body, err := runtime.Payload(resp)
		if err != nil {
			return reply{}, err
		}
		return reply{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	c.logger.Debug("controller request", zap.String("operation", op), zap.String("method", method), zap.Int("status", r.status))
	return r.status, r.body, nil
}
