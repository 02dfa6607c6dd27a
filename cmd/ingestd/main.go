// Command ingestd runs the multi-exchange market-data ingestion pipeline:
// REST and WebSocket collectors, order-book reconstruction, batch writers,
// the quality scanner, and the backfill retry sweep, wired together from a
// YAML configuration file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const appName = "ingestd"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Str("app", appName).Logger()

	root := &cobra.Command{
		Use:   appName,
		Short: "Multi-exchange cryptocurrency market-data ingestion pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the pipeline configuration file")

	root.AddCommand(newRunCmd(log))
	root.AddCommand(newMigrateCmd(log))
	root.AddCommand(newHealthcheckCmd(log))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
