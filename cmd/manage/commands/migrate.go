package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/benvon/formdrop/internal/config"
	"github.com/benvon/formdrop/internal/database"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply all pending embedded schema migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := database.New(context.Background(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			version, err := db.Migrate()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database schema at version %d\n", version)
			return nil
		},
	}
}
