package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/microsoft/arcdata-cli/pkg/config"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{cfg: cfg}
	rootCmd := &cobra.Command{
		Use:           "arcdata",
		Short:         "Manage Azure Arc data services on Kubernetes",
		Long:          `Deploy data controllers, Postgres server groups and SQL managed instances, and export their usage to Azure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newDataControllerCmd(a),
		newPostgresCmd(a),
		newSQLCmd(a),
		newConfigFileCmd(a),
	)

	err = rootCmd.ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
