package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Redis    RedisConfig    `json:"redis"`
	Backend  BackendConfig  `json:"backend"`
	Notify   NotifyConfig   `json:"notify"`
	Scan     ScanConfig     `json:"scan"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BackendConfig points at the time-series backend (Prometheus or a
// VictoriaMetrics endpoint speaking the same query API).
type BackendConfig struct {
	URL          string `json:"url"`
	QueryTimeout string `json:"queryTimeout"`
}

// NotifyConfig points at the notification channel service.
type NotifyConfig struct {
	APIBase    string `json:"apiBase"`
	APITimeout string `json:"apiTimeout"`
}

type ScanConfig struct {
	Interval           string `json:"interval"` // scheduler tick, e.g. "1m"
	LockTTL            string `json:"lockTTL"`
	MaxBackfillSeconds int    `json:"maxBackfillSeconds"`
	MaxBackfillCount   int    `json:"maxBackfillCount"`
	PolicyFile         string `json:"policyFile"` // optional YAML bootstrap
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()

	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "policyscan"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "debug"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Backend: BackendConfig{
			URL:          getEnv("BACKEND_URL", "http://localhost:9090"),
			QueryTimeout: getEnv("BACKEND_QUERY_TIMEOUT", "30s"),
		},
		Notify: NotifyConfig{
			APIBase:    getEnv("NOTIFY_API_BASE", ""),
			APITimeout: getEnv("NOTIFY_API_TIMEOUT", "10s"),
		},
		Scan: ScanConfig{
			Interval:           getEnv("SCAN_INTERVAL", "1m"),
			LockTTL:            getEnv("SCAN_LOCK_TTL", "10m"),
			MaxBackfillSeconds: getEnvInt("SCAN_MAX_BACKFILL_SECONDS", 86400),
			MaxBackfillCount:   getEnvInt("SCAN_MAX_BACKFILL_COUNT", 10),
			PolicyFile:         getEnv("SCAN_POLICY_FILE", ""),
		},
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			log.Err(err)
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:9090"
	}
	if cfg.Backend.QueryTimeout == "" {
		cfg.Backend.QueryTimeout = "30s"
	}
	if cfg.Notify.APITimeout == "" {
		cfg.Notify.APITimeout = "10s"
	}
	if cfg.Scan.Interval == "" {
		cfg.Scan.Interval = "1m"
	}
	if cfg.Scan.LockTTL == "" {
		cfg.Scan.LockTTL = "10m"
	}
	if cfg.Scan.MaxBackfillSeconds == 0 {
		cfg.Scan.MaxBackfillSeconds = 86400
	}
	if cfg.Scan.MaxBackfillCount == 0 {
		cfg.Scan.MaxBackfillCount = 10
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
