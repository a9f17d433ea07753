package main

import (
	"github.com/spf13/cobra"

	"biodata/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "biodata",
		Short:         "Biodata intake and moderation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config")
	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newImportCmd(), newAdminCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath)
}
