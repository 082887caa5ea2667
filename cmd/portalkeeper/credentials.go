package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/portalkeeper/pkg/credentials"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage session credentials in the OS keyring",
	}
	cmd.AddCommand(newCredentialsSetCmd(), newCredentialsDeleteCmd())
	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var (
		identity string
		service  string
	)

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Store the identity and secret for a session; the secret is read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			creds := credentials.Credentials{Identity: identity, Secret: secret}
			if err := credentials.NewKeyringProvider(service).Set(cmd.Context(), args[0], creds); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored credentials for %s\n", args[0])
			return err
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "login identity (user name or e-mail)")
	cmd.Flags().StringVar(&service, "service", credentials.DefaultKeyringService, "keyring service name")
	_ = cmd.MarkFlagRequired("identity")
	return cmd
}

func newCredentialsDeleteCmd() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove the stored credentials for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.NewKeyringProvider(service).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted credentials for %s\n", args[0])
			return err
		},
	}

	cmd.Flags().StringVar(&service, "service", credentials.DefaultKeyringService, "keyring service name")
	return cmd
}

// readSecret reads the first line of r.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("empty secret on stdin")
	}
	return secret, nil
}
