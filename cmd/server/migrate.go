package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hongminglow/coverage-api/internal/logger"
	"github.com/hongminglow/coverage-api/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	kind := storeKind(cfg.DatabaseURL)
	switch kind {
	case storePostgres:
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			log.Error().Err(err).Msg("migration failed")
			return err
		}
	default:
		// Opening the sqlite and memory stores applies their schema.
		s, err := openStore(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("migration failed")
			return err
		}
		s.Close()
	}
	log.Info().Str("store", kind).Msg("migrations applied")
	return nil
}
