package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Storage.DataDir != "data" {
		t.Errorf("defaults = %s/%s", cfg.Server.Port, cfg.Storage.DataDir)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: "9090"
  env: production
storage:
  data_dir: /var/lib/smartmove
redis:
  addr: redis:6379
  db: 2
rate_limit:
  max_calls_per_minute: 30
`), 0o644)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.Env != "production" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != "/var/lib/smartmove" {
		t.Errorf("data dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.RateLimit.MaxCallsPerMinute != 30 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("SMARTMOVE_PORT", "7070")
	t.Setenv("SMARTMOVE_DATA_DIR", "/tmp/fleet")
	t.Setenv("SMARTMOVE_REDIS_DB", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %s, env should win", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/fleet" {
		t.Errorf("data dir = %s", cfg.Storage.DataDir)
	}
	if cfg.Redis.DB != 5 {
		t.Errorf("redis db = %d", cfg.Redis.DB)
	}
}
