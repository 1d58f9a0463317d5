package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/agentgym/episodic-backend/internal/data/records"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
	"github.com/agentgym/episodic-backend/internal/utils"
)

// Service owns the GORM handle for the process. It is constructed once
// at startup and passed into every component; nothing reaches for a
// package-level connection.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the store selected by DB_TYPE: "postgres" for production,
// anything else falls back to a local sqlite file, which is also the
// default for development.
func New(log *logger.Logger) (*Service, error) {
	return NewWithType(log, utils.GetEnv("DB_TYPE", "sqlite", log))
}

// NewWithType opens the store for an explicit type, bypassing DB_TYPE.
func NewWithType(log *logger.Logger, dbType string) (*Service, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres":
		return NewPostgresService(log)
	case "sqlite", "":
		return NewSqliteService(log)
	default:
		return nil, fmt.Errorf("unknown DB_TYPE %q", dbType)
	}
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	return records.AutoMigrateAll(s.db)
}
