// Package db owns the gorm connection: driver selection, a small fixed pool,
// connect retries, and schema migration.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codejudge/internal/config"
	"codejudge/internal/logging"
	"codejudge/pkg/models"
)

const connectAttempts = 5

// Database wraps the gorm handle.
type Database struct {
	DB *gorm.DB
}

// Connect opens the configured database with exponential backoff and applies
// migrations. Postgres is the production driver; sqlite serves development
// and tests.
func Connect(cfg *config.Config) (*Database, error) {
	log := logging.L().Named("db")

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DBName)
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	default:
		return nil, fmt.Errorf("db: unknown driver %q", cfg.DBDriver)
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var gdb *gorm.DB
	var err error
	backoff := time.Second
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		gdb, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("db: connect after %d attempts: %w", connectAttempts, err)
		}
		log.Warn("database connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: pool handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBPoolSize)
	sqlDB.SetMaxIdleConns(cfg.DBPoolSize)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(gdb); err != nil {
		return nil, err
	}

	log.Info("database ready",
		zap.String("driver", cfg.DBDriver),
		zap.Int("pool_size", cfg.DBPoolSize))
	return &Database{DB: gdb}, nil
}

func migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&models.User{},
		&models.Problem{},
		&models.TestCase{},
		&models.Submission{},
		&models.SubmissionTestCase{},
	)
	if err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// Health pings the underlying connection.
func (d *Database) Health() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
