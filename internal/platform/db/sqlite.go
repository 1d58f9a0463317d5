package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/agentgym/episodic-backend/internal/platform/logger"
	"github.com/agentgym/episodic-backend/internal/utils"
)

func NewSqliteService(logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "SqliteService")

	dbPath := utils.GetEnv("SQLITE_PATH", "./.data", logg)
	dbName := utils.GetEnv("SQLITE_NAME", "episodic.db", logg)

	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	dsn := filepath.Join(dbPath, dbName)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db %s: %w", dsn, err)
	}

	// Serialized writers; sqlite has no row-level locking.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	serviceLog.Info("connected to sqlite", "path", dsn)
	return &Service{db: gdb, log: serviceLog}, nil
}
