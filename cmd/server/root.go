package main

import (
	"github.com/spf13/cobra"

	"github.com/hongminglow/coverage-api/internal/config"
)

// NewRootCmd builds the CLI. Running it without a subcommand serves HTTP.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "coverage-api",
		Short:        "Health insurance coverage user service",
		SilenceUsage: true,
		RunE:         runServe,
	}
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path, cmd.Flags())
}
