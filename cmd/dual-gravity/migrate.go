package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justestif/go-dual-gravity/internal/db"
	"github.com/justestif/go-dual-gravity/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := db.New(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if err := database.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		logging.Info().Msg("schema applied")
		return nil
	},
}
