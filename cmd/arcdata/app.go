package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/microsoft/arcdata-cli/pkg/arcdata"
	"github.com/microsoft/arcdata-cli/pkg/config"
	"github.com/microsoft/arcdata-cli/pkg/kube"
	"github.com/microsoft/arcdata-cli/pkg/logging"
	"github.com/microsoft/arcdata-cli/pkg/metrics"
	"github.com/microsoft/arcdata-cli/pkg/retry"
)

// app builds the handler lazily so that commands which only edit local files do
// not need a cluster.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	handler *arcdata.Handler
}

func (a *app) init() error {
	if a.logger != nil {
		return nil
	}
	logger, err := logging.NewLogger(logging.Options{Format: a.cfg.LogFormat, Level: a.cfg.LogLevel})
	if err != nil {
		return err
	}
	ctrllog.SetLogger(logging.NewLogr(logger))
	a.logger = logger
	a.metrics = metrics.NewCollector()
	return nil
}

// local returns a handler without a cluster client.
func (a *app) local() (*arcdata.Handler, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	return &arcdata.Handler{Config: a.cfg, Logger: a.logger, Out: os.Stdout}, nil
}

// cluster returns a handler bound to the configured cluster and namespace.
func (a *app) cluster() (*arcdata.Handler, error) {
	if a.handler != nil {
		return a.handler, nil
	}
	if err := a.init(); err != nil {
		return nil, err
	}
	exec := retry.NewExecutor(a.logger, a.metrics)
	kc, err := kube.NewClient(a.cfg.Kubeconfig, exec, a.cfg.RetryPolicy("kube", retry.Cluster))
	if err != nil {
		return nil, err
	}
	a.handler = arcdata.New(a.cfg, kc, exec, a.logger, a.metrics)
	return a.handler, nil
}

// run wraps a command body with the cluster handler and records its duration.
func (a *app) run(fn func(ctx context.Context, h *arcdata.Handler) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		h, err := a.cluster()
		if err != nil {
			return err
		}
		return a.observe(cmd, func() error { return fn(cmd.Context(), h) })
	}
}

// runLocal is run for commands that only touch local files.
func (a *app) runLocal(fn func(h *arcdata.Handler) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		h, err := a.local()
		if err != nil {
			return err
		}
		return a.observe(cmd, func() error { return fn(h) })
	}
}

func (a *app) observe(cmd *cobra.Command, fn func() error) error {
	start := time.Now()
	err := fn()
	name := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
	a.metrics.ObserveCommand(name, err, time.Since(start))
	if err != nil {
		a.logger.Debug("command failed", zap.String("command", name),
			zap.Stringer("kind", retry.Classify(err)), zap.Error(err))
	}
	return err
}

// close writes the metrics file and flushes the logger.
func (a *app) close() {
	if a.logger == nil {
		return
	}
	if a.cfg.MetricsPath != "" {
		if err := a.metrics.Write(a.cfg.MetricsPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	_ = a.logger.Sync()
}
