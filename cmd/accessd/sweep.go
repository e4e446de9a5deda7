package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	pgsession "github.com/PaulFidika/accesskit/session/postgres"
	"github.com/PaulFidika/accesskit/sweeper"
)

func newSweepCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete stale rate-limit windows and expired sessions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			windows, closeWindows, err := windowStore(a.cfg, pool)
			if err != nil {
				return err
			}
			defer closeWindows()

			res, err := sweeper.New(windows, pgsession.New(pool, a.cfg.Schema), a.log).RunOnce(ctx)
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"windows": res.Windows, "sessions": res.Sessions}).Info("accessd: sweep complete")
			return nil
		},
	}
}
