package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the checker service configuration. Defaults are overridden
// by an optional YAML file, then by environment variables.
type Config struct {
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	// Database enables the optional PostgreSQL event archive.
	Database struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	// Source selects where target expressions are resolved:
	// "local" (store retention) or "graphite" (remote render API).
	Source struct {
		Mode           string `yaml:"mode"`
		GraphiteURL    string `yaml:"graphite_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		StepSeconds    int    `yaml:"step_seconds"`
	} `yaml:"source"`

	Checker struct {
		IntervalSeconds   int `yaml:"interval_seconds"`
		CacheTTLSeconds   int `yaml:"cache_ttl_seconds"`
		MetricsTTLSeconds int `yaml:"metrics_ttl_seconds"`
		Workers           int `yaml:"workers"`
	} `yaml:"checker"`

	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DSN builds the archive database connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	cfg := &Config{}
	cfg.Redis.Addr = "localhost:6379"

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "checker"
	cfg.Database.SSLMode = "disable"

	cfg.Source.Mode = "local"
	cfg.Source.TimeoutSeconds = 10
	cfg.Source.StepSeconds = 60

	cfg.Checker.IntervalSeconds = 5
	cfg.Checker.CacheTTLSeconds = 60
	cfg.Checker.MetricsTTLSeconds = 3600
	cfg.Checker.Workers = 4

	cfg.API.Addr = ":8080"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load reads configuration: defaults, then the YAML file at path (a
// missing file falls back to defaults), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(content, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	if v := os.Getenv("DB_ENABLED"); v != "" {
		c.Database.Enabled = v == "true" || v == "1"
	}
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Source.Mode = getEnv("SOURCE_MODE", c.Source.Mode)
	c.Source.GraphiteURL = getEnv("SOURCE_GRAPHITE_URL", c.Source.GraphiteURL)

	c.API.Addr = getEnv("API_ADDR", c.API.Addr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

func (c *Config) validate() error {
	switch c.Source.Mode {
	case "local":
	case "graphite":
		if c.Source.GraphiteURL == "" {
			return fmt.Errorf("source.graphite_url is required when source.mode is graphite")
		}
	default:
		return fmt.Errorf("unknown source.mode %q", c.Source.Mode)
	}
	if c.Checker.IntervalSeconds <= 0 {
		c.Checker.IntervalSeconds = 5
	}
	if c.Checker.Workers <= 0 {
		c.Checker.Workers = 4
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
