package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jonesrussell/north-cloud/regwatch/internal/config"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func newMigrate(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending migration.
func RunMigrations(cfg config.DatabaseConfig, log logger.Logger) error {
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No pending migrations")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	version, _, _ := m.Version()
	log.Info("Migrations applied successfully", logger.Int("version", int(version)))
	return nil
}

// MigrateDown rolls back steps migrations, at least one.
func MigrateDown(cfg config.DatabaseConfig, steps int, log logger.Logger) error {
	if steps < 1 {
		steps = 1
	}
	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err = m.Steps(-steps); err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	log.Info("Migrations rolled back", logger.Int("steps", steps))
	return nil
}
