package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TanguyBaudrin/familly-companion/internal/database"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := commonRun(cmd)
			if err != nil {
				return err
			}

			// Open migrates as a side effect.
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			version, err := database.Version(db)
			if err != nil {
				return err
			}
			logger.Debug("migrations applied", "component", programName, "db", cfg.DBPath)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
