package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/aiagenz/billing/internal/config"
	"github.com/aiagenz/billing/internal/logger"
	"github.com/aiagenz/billing/internal/repository"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL migrations.`,
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("rollback failed: %w", err)
				}
				lg := logger.Component("migrate")
				lg.Info().Int("steps", steps).Msg("rolled back")
				return nil
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migration failed: %w", err)
					}
					lg := logger.Component("migrate")
					lg.Info().Msg("migrations applied")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err != nil {
						return fmt.Errorf("failed to read version: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger.Setup(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.InMemory() {
		return errors.New("DATABASE_URL selects the in-memory store, nothing to migrate")
	}

	m, err := repository.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
