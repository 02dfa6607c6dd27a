package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/ingestd/internal/config"
	"github.com/sawpanic/ingestd/internal/secrets"
	"github.com/sawpanic/ingestd/internal/storage/postgres"
)

func newHealthcheckCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Verify connectivity to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.ApplySecrets(context.Background(), secrets.NewResolver(log))

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			db, err := postgres.Open(ctx, cfg.Storage.DSN, cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns, 5*time.Second)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Ping(ctx); err != nil {
				return err
			}
			log.Info().Msg("database reachable")
			return nil
		},
	}
}
