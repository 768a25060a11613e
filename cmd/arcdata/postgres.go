package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/microsoft/arcdata-cli/api/v1beta1"
	"github.com/microsoft/arcdata-cli/pkg/applyargs"
	"github.com/microsoft/arcdata-cli/pkg/arcdata"
)

func newPostgresCmd(a *app) *cobra.Command {
	server := &cobra.Command{
		Use:   "server",
		Short: "Manage Postgres server groups",
	}
	server.AddCommand(
		newPostgresCreateCmd(a),
		newPostgresEditCmd(a),
		newPostgresDeleteCmd(a),
		newPostgresShowCmd(a),
		newPostgresListCmd(a),
		newPostgresEndpointsCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newPostgresConfigCmd(a),
	)
	cmd := &cobra.Command{
		Use:   "postgres",
		Short: "Manage Azure Arc enabled PostgreSQL Hyperscale",
	}
	cmd.AddCommand(server)
	return cmd
}

func addPostgresFlags(fs *pflag.FlagSet) {
	addResourceFlags(fs, true)
	addStorageFlags(fs)
	fs.Int("engine-version", 0, "Postgres major version")
	fs.Int32P("workers", "w", 0, "number of worker nodes")
	fs.Int32("replicas", 0, "number of replicas per node")
	fs.String("extensions", "", "comma separated extensions to load")
	fs.Int32("port", 0, "port of the primary service")
	fs.String("engine-settings", "", "engine settings of every role, e.g. key1=val1,key2=val2")
	fs.String("coordinator-engine-settings", "", "engine settings of the coordinator")
	fs.String("worker-engine-settings", "", "engine settings of the workers")
	fs.Bool("replace-engine-settings", false, "replace the existing engine settings instead of merging")
}

func postgresArgs(fs *pflag.FlagSet) applyargs.Postgres {
	replace, _ := fs.GetBool("replace-engine-settings")
	return applyargs.Postgres{
		Resources:                 resourceArgs(fs),
		Storage:                   storageArgs(fs),
		EngineVersion:             optInt(fs, "engine-version"),
		Workers:                   optInt32(fs, "workers"),
		Replicas:                  optInt32(fs, "replicas"),
		Extensions:                optString(fs, "extensions"),
		Port:                      optInt32(fs, "port"),
		EngineSettings:            optString(fs, "engine-settings"),
		CoordinatorEngineSettings: optString(fs, "coordinator-engine-settings"),
		WorkerEngineSettings:      optString(fs, "worker-engine-settings"),
		ReplaceEngineSettings:     replace,
	}
}

func newPostgresCreateCmd(a *app) *cobra.Command {
	var opts arcdata.PostgresCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a Postgres server group",
	}
	cmd.RunE = a.run(func(ctx context.Context, h *arcdata.Handler) error {
		opts.Args = postgresArgs(cmd.Flags())
		_, err := h.PostgresCreate(ctx, opts)
		return err
	})
	cmd.Flags().StringVar(&opts.Name, "name", "", "server group name")
	cmd.Flags().StringVar(&opts.Path, "path", "", "custom resource file to create from")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the server group to be ready")
	cmd.Flags().BoolVar(&opts.NoExternalEndpoint, "no-external-endpoint", false, "do not expose the server group outside the cluster")
	cmd.Flags().BoolVar(&opts.GeneratePassword, "generate-password", false, "generate a password when AZDATA_PASSWORD is not set")
	addPostgresFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPostgresEditCmd(a *app) *cobra.Command {
	var opts arcdata.PostgresEdit
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a Postgres server group",
	}
	cmd.RunE = a.run(func(ctx context.Context, h *arcdata.Handler) error {
		opts.Args = postgresArgs(cmd.Flags())
		_, err := h.PostgresEdit(ctx, opts)
		return err
	})
	cmd.Flags().StringVar(&opts.Name, "name", "", "server group name")
	cmd.Flags().StringVar(&opts.Path, "path", "", "custom resource file whose spec replaces the current one")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the server group to be ready")
	addPostgresFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPostgresDeleteCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a Postgres server group",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			return h.PostgresDelete(ctx, name)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "server group name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPostgresShowCmd(a *app) *cobra.Command {
	var name, path string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the custom resource of a Postgres server group",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.PostgresShow(ctx, name, path)
			return err
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "server group name")
	cmd.Flags().StringVar(&path, "path", "", "write the custom resource to this file")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPostgresListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the Postgres server groups of the namespace",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.PostgresList(ctx)
			return err
		}),
	}
}

func newPostgresEndpointsCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "List the connection endpoints of a Postgres server group",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.PostgresEndpoints(ctx, name)
			return err
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "server group name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backups of a Postgres server group",
	}
	cmd.AddCommand(newBackupCreateCmd(a), newBackupListCmd(a), newBackupDeleteCmd(a))
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	var opts arcdata.BackupCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Take a full or incremental backup",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.BackupCreate(ctx, opts)
			return err
		}),
	}
	cmd.Flags().StringVar(&opts.Server, "server-name", "", "server group name")
	cmd.Flags().StringVar(&opts.Name, "name", "", "backup name")
	cmd.Flags().BoolVar(&opts.Incremental, "incremental", false, "take an incremental backup")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the backup to finish")
	_ = cmd.MarkFlagRequired("server-name")
	return cmd
}

func newBackupListCmd(a *app) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the backups of a server group",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.BackupList(ctx, server)
			return err
		}),
	}
	cmd.Flags().StringVar(&server, "server-name", "", "server group name")
	_ = cmd.MarkFlagRequired("server-name")
	return cmd
}

func newBackupDeleteCmd(a *app) *cobra.Command {
	var opts arcdata.BackupDelete
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a backup by name or id",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.BackupDelete(ctx, opts)
			return err
		}),
	}
	cmd.Flags().StringVar(&opts.Server, "server-name", "", "server group name")
	cmd.Flags().StringVar(&opts.Name, "name", "", "backup name")
	cmd.Flags().StringVar(&opts.ID, "id", "", "backup id")
	_ = cmd.MarkFlagRequired("server-name")
	cmd.MarkFlagsMutuallyExclusive("name", "id")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var opts arcdata.BackupRestore
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a server group from a backup or to a point in time",
		RunE: a.run(func(ctx context.Context, h *arcdata.Handler) error {
			_, err := h.BackupRestore(ctx, opts)
			return err
		}),
	}
	cmd.Flags().StringVar(&opts.Server, "name", "", "server group to restore into")
	cmd.Flags().StringVar(&opts.Source, "source-server-name", "", "server group whose backups are restored")
	cmd.Flags().StringVar(&opts.BackupID, "backup-id", "", "backup to restore; the latest when empty")
	cmd.Flags().StringVar(&opts.Time, "time", "", "point in time: an offset such as 2h or 1.5d, or a date and time")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "do not wait for the restore to finish")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newPostgresConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Server group templates",
	}
	cmd.AddCommand(newConfigInitCmd(a, v1beta1.PostgreSQLKind))
	return cmd
}
