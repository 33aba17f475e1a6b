package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/modelgate/pkg/cryptox"
	"github.com/spf13/cobra"
)

func newHashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash a client secret read from stdin",
		Long: `Read a client secret from stdin and print its argon2id hash, suitable for
the secret half of a GATEWAY_CREDENTIALS entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			secret := strings.TrimRight(line, "\r\n")
			if secret == "" {
				if err != nil {
					return fmt.Errorf("failed to read secret: %w", err)
				}
				return errors.New("empty secret")
			}
			if len(secret) < cryptox.MinSecretLength {
				return fmt.Errorf("secret must be at least %d characters", cryptox.MinSecretLength)
			}

			hash, err := cryptox.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newGenSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "Print a random 256-bit secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
