package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Store struct {
		// Driver is one of memory, redis, postgres, mongo or sqlite.
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Category struct {
		TTL string `yaml:"ttl"`
	} `yaml:"category"`
	Exam struct {
		Duration       string `yaml:"duration"`
		Tick           string `yaml:"tick"`
		Retention      string `yaml:"retention"`
		ClampThreshold bool   `yaml:"clampThreshold"`
	} `yaml:"exam"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Seed struct {
		File string `yaml:"file"`
	} `yaml:"seed"`
}

// LoadDotEnv loads variables from .env files when present. Existing
// environment variables win.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads YAML config from path and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "exam"
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Store.Driver, "STORE_DRIVER")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.Mongo.URI, "MONGO_URI")
	override(&cfg.SQLite.Path, "SQLITE_PATH")
	override(&cfg.Auth.Secret, "AUTH_SECRET")
}

func override(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
