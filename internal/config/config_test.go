package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
logging:
  level: debug
graphql:
  endpoint: https://hub.example.com/graphql
  requests_per_second: 5
storage:
  driver: postgres
  dsn: postgres://menuselect:secret@db/menuselect?sslmode=disable
redis:
  enabled: true
  addr: redis:6379
  ttl_minutes: 30
refresh:
  schedule: "@every 5m"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.GraphQL.Endpoint != "https://hub.example.com/graphql" || cfg.GraphQL.RequestsPerSecond != 5 {
		t.Fatalf("graphql = %+v", cfg.GraphQL)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTLMinutes != 30 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Refresh.Schedule != "@every 5m" {
		t.Fatalf("refresh = %+v", cfg.Refresh)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MENUSELECT_HTTP_PORT", "7070")
	t.Setenv("MENUSELECT_LOG_LEVEL", "warn")
	t.Setenv("MENUSELECT_GRAPHQL_ENDPOINT", "http://env.example.com/graphql")
	t.Setenv("MENUSELECT_REDIS_ADDR", "envredis:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.GraphQL.Endpoint != "http://env.example.com/graphql" {
		t.Fatalf("endpoint = %q", cfg.GraphQL.Endpoint)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "envredis:6379" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"missing endpoint", func(c *Config) { c.GraphQL.Endpoint = "" }},
		{"postgres without dsn", func(c *Config) { c.Storage = StorageConfig{Driver: "postgres"} }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}
