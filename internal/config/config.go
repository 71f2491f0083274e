package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Store struct {
		Backend string `yaml:"backend"`
	} `yaml:"store"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		SurfaceTTL string `yaml:"surface_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Questions struct {
		APIBaseURL   string `yaml:"api_base_url"`
		FallbackBank string `yaml:"fallback_bank"`
		CacheTTL     string `yaml:"cache_ttl"`
		FetchTimeout string `yaml:"fetch_timeout"`
	} `yaml:"questions"`
	Quiz struct {
		DefaultMinutes int  `yaml:"default_minutes"`
		DefaultCount   int  `yaml:"default_count"`
		PreferUnseen   bool `yaml:"prefer_unseen"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path, then applies environment overrides and
// defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// ApplyDefaults fills every unset field that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/quizprep.db"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "quiz.results"
	}
	if c.Quiz.DefaultMinutes <= 0 {
		c.Quiz.DefaultMinutes = 10
	}
	if c.Quiz.DefaultCount < 0 {
		c.Quiz.DefaultCount = 0
	}
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store backend %q needs redis.addr", c.Store.Backend)
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store backend %q needs postgres.url", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("QUESTIONS_API_URL"); v != "" {
		c.Questions.APIBaseURL = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
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
