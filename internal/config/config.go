// Package config loads the menuselect service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AllowedOrigins lists CORS origins; empty or "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RequestsPerSecond throttles each client address. Zero disables
	// throttling.
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// LoggingConfig mirrors pkg/logger's construction options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// GraphQLConfig points at the data hub.
type GraphQLConfig struct {
	Endpoint          string `yaml:"endpoint"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	Burst             int    `yaml:"burst"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// StorageConfig selects the confirmed-state store backend.
type StorageConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig controls the shared occurrence cache.
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// RefreshConfig schedules the periodic occurrence-validity refresh.
type RefreshConfig struct {
	// Schedule is a cron expression. Empty disables the refresher.
	Schedule string `yaml:"schedule"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	GraphQL GraphQLConfig `yaml:"graphql"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Refresh RefreshConfig `yaml:"refresh"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		GraphQL: GraphQLConfig{
			Endpoint:          "http://localhost:4000/graphql",
			RequestsPerSecond: 20,
			TimeoutSeconds:    15,
		},
		Storage: StorageConfig{Driver: "memory"},
		Redis:   RedisConfig{Addr: "localhost:6379", TTLMinutes: 15},
		Refresh: RefreshConfig{Schedule: "@every 15m"},
	}
}

// Load reads config from path (when present), then applies env overrides and
// validates. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	// A local .env file feeds the override pass in dev setups.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MENUSELECT_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MENUSELECT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MENUSELECT_GRAPHQL_ENDPOINT"); v != "" {
		cfg.GraphQL.Endpoint = v
	}
	if v := os.Getenv("MENUSELECT_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("MENUSELECT_POSTGRES_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("MENUSELECT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.GraphQL.Endpoint == "" {
		return fmt.Errorf("graphql endpoint is required")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("postgres driver requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
