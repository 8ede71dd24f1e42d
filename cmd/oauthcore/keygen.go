package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/oauthcore/pkg/secrets"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new token encryption key for OAUTH_TOKEN_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := secrets.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), secrets.EncodeKey(key))
			return err
		},
	}
}
