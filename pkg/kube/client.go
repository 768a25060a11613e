// Package kube reaches the Kubernetes API. Every call goes through the retry
// executor.
package kube

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// Client wraps a controller-runtime client and REST config.
type Client struct {
	Client     client.Client
	RestConfig *rest.Config
	Scheme     *runtime.Scheme

	Executor *retry.Executor
	// Policy is the base policy; each call derives a named copy.
	Policy retry.Policy
}

// NewClient builds a Kubernetes client for the given kubeconfig, falling back to
// the in-cluster or default loading rules when it is empty.
func NewClient(kubeconfig string, exec *retry.Executor, policy retry.Policy) (*Client, error) {
	var cfg *rest.Config
	var err error
	if strings.TrimSpace(kubeconfig) != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = config.GetConfig()
	}
	if err != nil {
		return nil, errors.Wrap(err, "load kubeconfig")
	}

	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	kubeClient, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, errors.Wrap(err, "create Kubernetes client")
	}
	return &Client{Client: kubeClient, RestConfig: cfg, Scheme: scheme, Executor: exec, Policy: policy}, nil
}

// Wrap uses an existing client, such as a fake one in tests.
func Wrap(c client.Client, exec *retry.Executor, policy retry.Policy) *Client {
	return &Client{Client: c, Scheme: c.Scheme(), Executor: exec, Policy: policy}
}

func (c *Client) run(ctx context.Context, operation string, op func(context.Context) error) error {
	return c.Executor.Run(ctx, c.Policy.WithName(operation), op)
}

// notFound turns an API not-found into retry.ErrNotFound so Fetch reports it as a
// negative result.
func notFound(err error) error {
	if retry.Classify(err) == retry.KindNotFound {
		return errors.Wrap(retry.ErrNotFound, err.Error())
	}
	return err
}
