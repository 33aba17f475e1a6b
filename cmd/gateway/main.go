// Command gateway runs the model inference gateway and its operator tooling.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/modelgate/internal/gateway/app"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "gateway",
		Short:   "Secure inference gateway",
		Version: app.BuildVersion,
		Long: `Fronts a single ML model with token authentication, per-identity quotas,
artifact integrity checks and an audit trail.

Example:
  gateway serve --config /etc/modelgate/gateway.yaml
  gateway manifest --version 1.0.0 /models/iris.model.json`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd(), newManifestCmd(), newHashSecretCmd(), newGenSecretCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Long: `Run the gateway. Configuration comes from the optional YAML file given
with --config, overridden by GATEWAY_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}

			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}

			application, err := app.New(context.Background(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run()
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	return cmd
}
