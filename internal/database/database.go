package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ahmetk3436/serverdeck/internal/config"
	"github.com/ahmetk3436/serverdeck/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database selected by cfg.DBDriver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch cfg.DBDriver {
	case "sqlite":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(cfg.DBPath+"?_foreign_keys=on&_busy_timeout=5000"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		slog.Info("Database connected", "driver", "sqlite", "path", cfg.DBPath)
		return db, nil
	default:
		db, err := gorm.Open(postgres.Open(DSN(cfg)), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("Database connected", "driver", "postgres", "host", cfg.DBHost, "db", cfg.DBName)
		return db, nil
	}
}

// DSN is the libpq connection string for the postgres driver.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Server{},
		&models.ConnectionHistory{},
		&models.UserPreferences{},
		&models.Activity{},
	)
}

func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
