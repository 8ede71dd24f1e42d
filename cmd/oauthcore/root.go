package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "oauthcore",
		Short: "OAuth2 sign-in and account linking service",
		Long: `oauthcore runs the authorization code flow with PKCE against the
configured identity providers, links external identities to local users
and keeps their tokens encrypted and fresh.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load instead of ./.env")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newKeygenCmd(),
	)
	return cmd
}
