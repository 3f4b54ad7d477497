// Package db stores historical block and transaction datasets in Postgres
// for the replay simulation.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lisanmuaddib/gas-escalator/pkg/db/models"
)

const (
	maxOpenConns    = 4
	connMaxIdleTime = 5 * time.Minute
	pingTimeout     = 5 * time.Second
)

// SetupDatabase brings the schema up to date and returns a connection to the
// dataset database.
func SetupDatabase(logger *logrus.Logger, config *Config) (*gorm.DB, error) {
	log := logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"database": config.Name,
	})
	log.Debug("Preparing dataset database")

	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}
	if err := RunMigrations(logger, config, projectRoot); err != nil {
		return nil, err
	}

	conn, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		Logger:                 NewGormLogrusLogger(logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database not reachable: %w", err)
	}

	// Migrations own the schema; this only checks the models still match it.
	if !conn.Migrator().HasTable(&models.Block{}) || !conn.Migrator().HasTable(&models.Transaction{}) {
		return nil, fmt.Errorf("dataset tables missing after migration")
	}

	log.Info("Dataset database ready")
	return conn, nil
}
