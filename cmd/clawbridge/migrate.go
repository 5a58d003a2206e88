package main

import (
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawbridge/internal/config"
	"github.com/nextlevelbuilder/clawbridge/internal/store"
)

func migrationsDirFor(cfg *config.Config) string {
	if cfg.Database.MigrationsDir != "" {
		return cfg.Database.MigrationsDir
	}
	return "internal/store/migrations"
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	return cmd
}

func loadMigrationTarget() (dsn, dir string, err error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgresDSN == "" {
		return "", "", fmt.Errorf("CLAWBRIDGE_POSTGRES_DSN environment variable is not set")
	}
	return cfg.Database.PostgresDSN, migrationsDirFor(cfg), nil
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, dir, err := loadMigrationTarget()
			if err != nil {
				return err
			}
			version, dirty, err := store.Migrate(dir, dsn)
			if err != nil {
				return err
			}
			slog.Info("migration complete", "version", version, "dirty", dirty)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, dir, err := loadMigrationTarget()
			if err != nil {
				return err
			}
			m, err := migrate.New("file://"+dir, dsn)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer m.Close()

			if steps <= 0 {
				steps = 1
			}
			if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("migrate down: %w", err)
			}
			v, dirty, _ := m.Version()
			slog.Info("rollback complete", "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, dir, err := loadMigrationTarget()
			if err != nil {
				return err
			}
			m, err := migrate.New("file://"+dir, dsn)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer m.Close()

			v, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			fmt.Printf("version: %d, dirty: %v\n", v, dirty)
			return nil
		},
	}
}
