package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the session database selected by cfg.Driver.
func Open(cfg config.StorageConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	switch cfg.Driver {
	case config.DriverPostgres:
		dsn := PostgresDSN(cfg)
		if cfg.InstanceConnectionName != "" {
			log.Info("connecting to Cloud SQL via socket", zap.String("instance", cfg.InstanceConnectionName))
		} else {
			log.Info("connecting to PostgreSQL", zap.String("host", cfg.Host), zap.String("db", cfg.Name))
		}
		db, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return db, nil

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		log.Info("opening SQLite database", zap.String("path", cfg.SQLitePath))
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("driver %q has no database", cfg.Driver)
}

// PostgresDSN builds the connection string. Cloud Run instances connect over the Cloud SQL socket.
func PostgresDSN(cfg config.StorageConfig) string {
	if cfg.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.User, cfg.Password, cfg.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
}
