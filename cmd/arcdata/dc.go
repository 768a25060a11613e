package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/arcdata"
)

func newDataControllerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dc",
		Aliases: []string{"datacontroller"},
		Short:   "Manage the data controller",
	}
	cmd.AddCommand(
		newDCCreateCmd(a),
		newDCDeleteCmd(a),
		newDCStatusCmd(a),
		newDCGetCmd(a),
		newDCExportCmd(a),
		newDCUploadCmd(a),
		newDCEndpointCmd(a),
		newDCConfigCmd(a),
	)
	return cmd
}

func newDCCreateCmd(a *app) *cobra.Command {
	var opts arcdata.DataControllerCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Deploy a data controller in indirect connectivity mode",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DataControllerCreate(ctx, opts)
			return err
		}),
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "data controller name")
	cmd.Flags().StringVar(&opts.Path, "path", "", "custom resource file to deploy instead of the default template")
	cmd.Flags().StringVar(&opts.Infrastructure, "infrastructure", "", "infrastructure the cluster runs on: aws|gcp|azure|alibaba|onpremises|other")
	cmd.Flags().StringVar(&opts.ConnectivityMode, "connectivity-mode", "", "connectivity mode; only indirect is supported")
	cmd.Flags().StringVar(&opts.CRDDir, "crd-dir", "", "directory of custom resource definitions to apply first")
	cmd.Flags().StringVar(&opts.Subscription, "subscription", "", "Azure subscription id")
	cmd.Flags().StringVar(&opts.ResourceGroup, "resource-group", "", "Azure resource group")
	cmd.Flags().StringVar(&opts.Location, "location", "", "Azure location")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the data controller to be ready")
	cmd.Flags().BoolVar(&opts.Register, "register", false, "create the data controller resource in Azure once ready")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDCDeleteCmd(a *app) *cobra.Command {
	var name string
	var noWait bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a data controller",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			return h.DataControllerDelete(ctx, name, noWait)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "data controller name")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "do not wait for the deletion to finish")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDCStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the data controller",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DataControllerStatus(ctx)
			return err
		}),
	}
}

func newDCGetCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Write the data controller custom resource to a file",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DataControllerGet(ctx, path)
			return err
		}),
	}
	cmd.Flags().StringVar(&path, "path", "", "output file")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newDCExportCmd(a *app) *cobra.Command {
	var opts arcdata.Export
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export metrics, logs or usage to a file",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.Export(ctx, opts)
			return err
		}),
	}
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "export type: metrics|logs|usage")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "output file")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite an existing output file")
	cmd.Flags().BoolVar(&opts.Archive, "archive", false, "also upload the exported files to the configured object store")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newDCUploadCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an export file to Azure",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			return h.Upload(ctx, path)
		}),
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "export file")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newDCEndpointCmd(a *app) *cobra.Command {
	var name string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the dashboards of the data controller",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DataControllerEndpoints(ctx, name)
			return err
		}),
	}
	list.Flags().StringVarP(&name, "endpoint-name", "e", "", "only list this endpoint: logsui|metricsui")
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Data controller endpoints",
	}
	cmd.AddCommand(list)
	return cmd
}

func newDCConfigCmd(a *app) *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the data controller custom resource",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DataControllerConfigShow(ctx)
			return err
		}),
	}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Data controller configuration",
	}
	cmd.AddCommand(show, newConfigInitCmd(a, v1beta1.DataControllerKind))
	return cmd
}
