package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/TanguyBaudrin/familly-companion/internal/logging"
)

const (
	// DefaultConfigFile is read when no --config flag is given and it exists.
	DefaultConfigFile = "companion.yaml"

	envPrefix = "COMPANION"
)

type ctxKey string

const configContextKey ctxKey = "companion.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Port            int           `yaml:"port"            split_words:"true"`
	DBPath          string        `yaml:"dbPath"          split_words:"true"`
	LogLevel        string        `yaml:"logLevel"        split_words:"true"`
	CORSOrigins     []string      `yaml:"corsOrigins"     split_words:"true"`
	ClaimRateLimit  int           `yaml:"claimRateLimit"  split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            8080,
		DBPath:          "companion.db",
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		ClaimRateLimit:  5,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file, then
// COMPANION_* environment variables. An empty configFile falls back to
// DefaultConfigFile when present.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			configFile = DefaultConfigFile
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.ClaimRateLimit < 0 {
		return fmt.Errorf("invalid claim rate limit %d: must not be negative", c.ClaimRateLimit)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %s", c.ShutdownTimeout)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
