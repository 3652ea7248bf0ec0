package datastore

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// DefaultSlowQueryThreshold defines the duration after which a query is
	// considered slow. The reservation path is expected to finish in low
	// milliseconds, so anything near this threshold deserves a log line.
	DefaultSlowQueryThreshold = 1 * time.Second
)

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             DefaultSlowQueryThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// performAutoMigration migrates every registered entity table.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := ledgerLogger.With("db_type", dbType)

	migrationLogger.Debug("starting database migration")

	if err := db.AutoMigrate(registeredModels()...); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	migrationLogger.Debug("database migration completed",
		slog.Duration("total_duration", time.Since(migrationStart)),
		slog.Int("tables", len(entityRegistry)))

	if debug {
		migrationLogger.Info("database ready", "db_type", dbType, "connection", connectionInfo)
	}
	return nil
}
