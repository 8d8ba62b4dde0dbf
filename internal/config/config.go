// Package config loads the server configuration from YAML with environment
// variable overrides (SMARTMOVE_* takes precedence over the file).
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// RedisConfig enables the cross-instance event bus when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig enables the audit archive mirror when DSN is set.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RateLimitConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// Load reads the YAML file at path and applies environment overrides. A
// missing file is not an error; the defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:  ServerConfig{Port: "8080", Env: "development"},
		Storage: StorageConfig{DataDir: "data"},
	}

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SMARTMOVE_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SMARTMOVE_ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := os.Getenv("SMARTMOVE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SMARTMOVE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SMARTMOVE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SMARTMOVE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("SMARTMOVE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}
