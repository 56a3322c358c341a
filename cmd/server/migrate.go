package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-doc-workflows/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			db, err := database.New(ctx, databaseConfig(cfg))
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
			log.Info().Str("database", cfg.Database.Database).Msg("Schema applied")
			return nil
		},
	}
}
