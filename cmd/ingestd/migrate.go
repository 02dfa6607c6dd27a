package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/ingestd/internal/config"
	"github.com/sawpanic/ingestd/internal/secrets"
	"github.com/sawpanic/ingestd/internal/storage/postgres"
)

func newMigrateCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.ApplySecrets(context.Background(), secrets.NewResolver(log))

			if err := postgres.Migrate(cfg.Storage.DSN); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
