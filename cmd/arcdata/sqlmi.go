package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/applyargs"
	"github.com/microsoft/arcdata-cli/pkg/arcdata"
)

func newSQLCmd(a *app) *cobra.Command {
	mi := &cobra.Command{
		Use:   "mi",
		Short: "Manage SQL managed instances",
	}
	mi.AddCommand(
		newSQLMICreateCmd(a),
		newSQLMIEditCmd(a),
		newSQLMIDeleteCmd(a),
		newSQLMIShowCmd(a),
		newSQLMIListCmd(a),
		newSQLMIEndpointsCmd(a),
		newSQLMIConfigCmd(a),
		newDagCmd(a),
	)
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Manage Azure Arc enabled SQL managed instances",
	}
	cmd.AddCommand(mi)
	return cmd
}

func addSQLMIFlags(fs *pflag.FlagSet) {
	addResourceFlags(fs, false)
	addStorageFlags(fs)
	fs.Int32("replicas", 0, "number of replicas")
	fs.String("tier", "", "pricing tier: gp|GeneralPurpose|bc|BusinessCritical")
	fs.String("license-type", "", "license type: BasePrice|LicenseIncluded")
	fs.String("labels", "", "labels of the instance, e.g. key1=val1,key2=val2")
	fs.String("annotations", "", "annotations of the instance")
	fs.String("service-labels", "", "labels of the primary service")
	fs.String("service-annotations", "", "annotations of the primary service")
}

func sqlmiArgs(fs *pflag.FlagSet) applyargs.SQLManagedInstance {
	return applyargs.SQLManagedInstance{
		Resources:          resourceArgs(fs),
		Storage:            storageArgs(fs),
		Replicas:           optInt32(fs, "replicas"),
		Tier:               optString(fs, "tier"),
		LicenseType:        optString(fs, "license-type"),
		Labels:             optString(fs, "labels"),
		Annotations:        optString(fs, "annotations"),
		ServiceLabels:      optString(fs, "service-labels"),
		ServiceAnnotations: optString(fs, "service-annotations"),
	}
}

func newSQLMICreateCmd(a *app) *cobra.Command {
	var opts arcdata.SQLMICreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a SQL managed instance",
	}
	cmd.RunE = a.run(func(ctx context.Context, h *arcdata.Handler) error {
		opts.Args = sqlmiArgs(cmd.Flags())
		_, err := h.SQLMICreate(ctx, opts)
		return err
	})
	cmd.Flags().StringVar(&opts.Name, "name", "", "instance name")
	cmd.Flags().StringVar(&opts.Path, "path", "", "custom resource file to create from")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the instance to be ready")
	cmd.Flags().BoolVar(&opts.NoExternalEndpoint, "no-external-endpoint", false, "do not expose the instance outside the cluster")
	cmd.Flags().BoolVar(&opts.GeneratePassword, "generate-password", false, "generate a password when AZDATA_PASSWORD is not set")
	addSQLMIFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSQLMIEditCmd(a *app) *cobra.Command {
	var opts arcdata.SQLMIEdit
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a SQL managed instance",
	}
	cmd.RunE = a.run(func(ctx context.Context, h *arcdata.Handler) error {
		opts.Args = sqlmiArgs(cmd.Flags())
		_, err := h.SQLMIEdit(ctx, opts)
		return err
	})
	cmd.Flags().StringVar(&opts.Name, "name", "", "instance name")
	cmd.Flags().StringVar(&opts.Path, "path", "", "custom resource file whose spec replaces the current one")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the instance to be ready")
	addSQLMIFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSQLMIDeleteCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a SQL managed instance",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			return h.SQLMIDelete(ctx, name)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "instance name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSQLMIShowCmd(a *app) *cobra.Command {
	var name, path string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the custom resource of a SQL managed instance",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.SQLMIShow(ctx, name, path)
			return err
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "instance name")
	cmd.Flags().StringVar(&path, "path", "", "write the custom resource to this file")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSQLMIListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the SQL managed instances of the namespace",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.SQLMIList(ctx)
			return err
		}),
	}
}

func newSQLMIEndpointsCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "List the connection endpoints of a SQL managed instance",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.SQLMIEndpoints(ctx, name)
			return err
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "instance name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSQLMIConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Managed instance templates",
	}
	cmd.AddCommand(newConfigInitCmd(a, v1beta1.SQLManagedInstanceKind))
	return cmd
}

func newDagCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Manage distributed availability groups",
	}
	cmd.AddCommand(newDagCreateCmd(a), newDagDeleteCmd(a), newDagGetCmd(a))
	return cmd
}

func newDagCreateCmd(a *app) *cobra.Command {
	var opts arcdata.DagCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a distributed availability group with a remote managed instance",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DagCreate(ctx, opts)
			return err
		}),
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "name of the custom resource")
	cmd.Flags().StringVar(&opts.DagName, "dag-name", "", "name of the distributed availability group")
	cmd.Flags().StringVar(&opts.LocalName, "local-name", "", "local managed instance")
	cmd.Flags().BoolVar(&opts.LocalPrimary, "local-primary", false, "the local instance is the primary")
	cmd.Flags().StringVar(&opts.RemoteName, "remote-name", "", "remote managed instance")
	cmd.Flags().StringVar(&opts.RemoteURL, "remote-url", "", "mirroring endpoint of the remote instance")
	cmd.Flags().StringVar(&opts.RemoteCertFile, "remote-cert-file", "", "mirroring endpoint certificate of the remote instance")
	cmd.Flags().StringVar(&opts.Path, "path", "", "custom resource file to create from")
	_ = cmd.MarkFlagRequired("remote-cert-file")
	return cmd
}

func newDagDeleteCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a distributed availability group",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			return h.DagDelete(ctx, name)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the custom resource")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDagGetCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the input and status of a distributed availability group",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.DagGet(ctx, name)
			return err
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the custom resource")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
