package main

import (
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"biodata/internal/app"
	"biodata/internal/repositories"
	"biodata/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app.ConfigureLogging(cfg.Log.Level, cfg.Log.Format)

			db, err := repositories.Open(cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}

			ctx := cmd.Context()
			switch args[0] {
			case "up":
				return goose.UpContext(ctx, db, ".")
			case "down":
				return goose.DownContext(ctx, db, ".")
			case "status":
				return goose.StatusContext(ctx, db, ".")
			}
			return fmt.Errorf("unknown migrate action %q", args[0])
		},
	}
	return cmd
}
