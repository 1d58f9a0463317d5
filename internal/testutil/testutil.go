package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
)

// Logger returns a test-mode logger.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("create test logger: %v", err)
	}
	return log
}

// DB opens a migrated database for one test. Defaults to an in-memory
// sqlite database; set EPISODIC_TEST_POSTGRES_DSN to run against
// postgres instead.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	if dsn := os.Getenv("EPISODIC_TEST_POSTGRES_DSN"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(":memory:"), cfg)
	}
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("unwrap test db: %v", err)
	}
	// One connection keeps the in-memory database alive and serialized.
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := records.AutoMigrateAll(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	return db
}
