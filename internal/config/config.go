package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines taplist service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"TAPLIST_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"TAPLIST_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"TAPLIST_REDIS_ADDR"`
		Password string `yaml:"password" env:"TAPLIST_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"TAPLIST_REDIS_DB"`
	} `yaml:"redis"`
	Push struct {
		URL     string `yaml:"url" env:"TAPLIST_PUSH_URL"`
		Timeout int    `yaml:"timeoutSeconds" env:"TAPLIST_PUSH_TIMEOUT"`
	} `yaml:"push"`
	Engine struct {
		TransactAttempts int `yaml:"transactAttempts" env:"TAPLIST_TRANSACT_ATTEMPTS"`
		SweepSeconds     int `yaml:"sweepSeconds" env:"TAPLIST_SWEEP_SECONDS"`
		PollSeconds      int `yaml:"pollSeconds" env:"TAPLIST_SCHEDULER_POLL_SECONDS"`
	} `yaml:"engine"`
}

// Load reads configuration from YAML file plus environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8084"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Push.Timeout = 5
	cfg.Engine.TransactAttempts = 5
	cfg.Engine.SweepSeconds = 60
	cfg.Engine.PollSeconds = 1

	if err := load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if cfg.Engine.TransactAttempts <= 0 {
		return nil, errors.New("config: transact attempts must be positive")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PushTimeout returns the push client timeout as duration.
func (c *Config) PushTimeout() time.Duration {
	if c.Push.Timeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Push.Timeout) * time.Second
}

// SweepInterval returns the stale-session sweep interval.
func (c *Config) SweepInterval() time.Duration {
	if c.Engine.SweepSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Engine.SweepSeconds) * time.Second
}

// PollInterval returns how often the scheduler dispatcher checks for due tasks.
func (c *Config) PollInterval() time.Duration {
	if c.Engine.PollSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.Engine.PollSeconds) * time.Second
}
