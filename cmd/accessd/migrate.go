package main

import (
	"github.com/spf13/cobra"

	migrations "github.com/PaulFidika/accesskit/migrations/postgres"
)

func newMigrateCommand(a *app) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down roll back) the database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			if down {
				return migrations.Down(cmd.Context(), a.cfg.DatabaseURL, a.log)
			}
			return migrations.Up(cmd.Context(), a.cfg.DatabaseURL, a.log)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration group")
	return cmd
}
