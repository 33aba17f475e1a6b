package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/modelgate/internal/gateway/service"
	"github.com/spf13/cobra"
)

func newManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <artifact>",
		Short: "Write the version manifest for a model artifact",
		Long: `Digest the artifact, check that it decodes, and write its version manifest
(default: <artifact>.manifest.yaml). Prints the fingerprint to configure as
GATEWAY_MODEL_FINGERPRINT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := cmd.Flags().GetString("version")
			if err != nil {
				return fmt.Errorf("failed to get version flag: %w", err)
			}
			out, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("failed to get output flag: %w", err)
			}
			if version == "" {
				return errors.New("--version is required")
			}

			artifact := args[0]
			if out == "" {
				out = service.ManifestPathFor(artifact)
			}

			m, err := service.BuildManifest(cmd.Context(), artifact, version, nil, time.Now())
			if err != nil {
				return err
			}
			if err := service.WriteManifest(out, m); err != nil {
				return fmt.Errorf("failed to write manifest: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "manifest:    %s\n", out)
			fmt.Fprintf(cmd.OutOrStdout(), "version:     %s\n", m.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %s\n", m.Fingerprint)
			return nil
		},
	}

	cmd.Flags().String("version", "", "Model version to record (required)")
	cmd.Flags().StringP("output", "o", "", "Manifest path")
	return cmd
}
