package main

import (
	"github.com/spf13/cobra"

	"github.com/ashureev/mirror-pond/internal/config"
	"github.com/ashureev/mirror-pond/internal/identity"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Pond identity commands",
	}

	var path string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the pond's public identity without creating one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.Pond.IdentityFile
			}
			ident, err := identity.Load(path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ident)
		},
	}
	show.Flags().StringVar(&path, "file", "", "identity file (defaults to POND_IDENTITY_FILE)")
	cmd.AddCommand(show)
	return cmd
}
