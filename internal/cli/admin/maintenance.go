package admin

import (
	"fmt"

	"github.com/cloo-solutions/draftdesk/internal/config"
	"github.com/cloo-solutions/draftdesk/internal/database"
	"github.com/cloo-solutions/draftdesk/internal/jobs"
	"github.com/cloo-solutions/draftdesk/internal/repository"
	"github.com/spf13/cobra"
)

// MigrateCmd applies pending migrations without starting the server.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			source, _ := cmd.Flags().GetString("migrations")
			return database.Migrate(cfg.DatabaseURL, source)
		},
	}

	cmd.Flags().String("migrations", defaultMigrationsSource, "Migration source URL")

	return cmd
}

// SweepCmd runs the stale-ingestion sweep once, for cron setups that do not
// run the daemon's background worker.
func SweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark stale ingestions as failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, cfg, err := getDBPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			threshold, _ := cmd.Flags().GetDuration("older-than")
			if threshold <= 0 {
				threshold = cfg.StaleIngestionAfter
			}

			sweeper := jobs.NewStaleIngestionSweeper(repository.NewDocumentRepository(pool), threshold)
			return sweeper.ProcessJobs(ctx)
		},
	}

	cmd.Flags().Duration("older-than", 0, "Staleness threshold (default DRAFTDESK_STALE_INGESTION_AFTER)")

	return cmd
}
