package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

func newMigrator(config *Config, projectRoot string) (*migrate.Migrate, error) {
	migrationsPath := fmt.Sprintf("file://%s", filepath.Join(projectRoot, "migrations"))
	m, err := migrate.New(migrationsPath, config.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations executes database migrations
func RunMigrations(logger *logrus.Logger, config *Config, projectRoot string) error {
	logger.WithFields(logrus.Fields{
		"project_root": projectRoot,
		"database":     config.Name,
	}).Debug("Running database migrations")

	m, err := newMigrator(config, projectRoot)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigrationStatus returns the current migration version and dirty state.
// A database no migration has run against reports version 0.
func MigrationStatus(logger *logrus.Logger, config *Config) (uint, bool, error) {
	logger.Debug("Checking migration status")

	projectRoot, err := findProjectRoot()
	if err != nil {
		return 0, false, fmt.Errorf("failed to find project root: %w", err)
	}

	m, err := newMigrator(config, projectRoot)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Debug("Migration status retrieved")

	return version, dirty, nil
}
