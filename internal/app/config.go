package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentgym/episodic-backend/internal/platform/logger"
	"github.com/agentgym/episodic-backend/internal/utils"
)

// Config is the process configuration. Values load from an optional
// yaml file (CONFIG_FILE) first, then environment variables override.
type Config struct {
	LogMode      string   `yaml:"log_mode"`
	HTTPPort     int      `yaml:"http_port"`
	DBType       string   `yaml:"db_type"`
	AllowOrigins []string `yaml:"allow_origins"`
	ServiceName  string   `yaml:"service_name"`
	Environment  string   `yaml:"environment"`
	Version      string   `yaml:"version"`
}

func defaultConfig() Config {
	return Config{
		LogMode:     "development",
		HTTPPort:    8080,
		DBType:      "sqlite",
		ServiceName: "episodic-backend",
		Environment: "development",
		Version:     "dev",
	}
}

// Load resolves the effective configuration.
func Load(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("loaded config file", "path", path)
	}

	cfg.LogMode = utils.GetEnv("LOG_MODE", cfg.LogMode, log)
	cfg.HTTPPort = utils.GetEnvAsInt("HTTP_PORT", cfg.HTTPPort, log)
	cfg.DBType = utils.GetEnv("DB_TYPE", cfg.DBType, log)
	cfg.ServiceName = utils.GetEnv("SERVICE_NAME", cfg.ServiceName, log)
	cfg.Environment = utils.GetEnv("ENVIRONMENT", cfg.Environment, log)
	cfg.Version = utils.GetEnv("SERVICE_VERSION", cfg.Version, log)
	if origins := strings.TrimSpace(os.Getenv("ALLOW_ORIGINS")); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.AllowOrigins = cfg.AllowOrigins[:0]
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, part)
			}
		}
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
