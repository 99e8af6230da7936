package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pixelgrid/internal/engine"
	"github.com/roach88/pixelgrid/internal/pgstore"
)

// Backends accepted by `pixelgrid serve`.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the CLI configuration. Values come from defaults, then the
// YAML file named by --config, then environment variables, then flags.
type Config struct {
	// URL is the relay that client commands connect to.
	URL string `yaml:"url"`

	// Size is the grid side length.
	Size int `yaml:"size"`

	Serve ServeConfig `yaml:"serve"`
}

// ServeConfig configures `pixelgrid serve`.
type ServeConfig struct {
	Addr     string         `yaml:"addr"`
	Backend  string         `yaml:"backend"`
	DB       string         `yaml:"db"`
	Postgres pgstore.Config `yaml:"postgres"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:  "http://localhost:8080",
		Size: engine.DefaultGridSize,
		Serve: ServeConfig{
			Addr:    ":8080",
			Backend: BackendSQLite,
			DB:      "pixelgrid.db",
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional file at
// path, and the environment as read by getenv.
//
// Environment overrides:
//   - PIXELGRID_URL: relay url
//   - DATABASE_URL: postgres connection string
//   - REDIS_ADDR: redis address
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if v := getenv("PIXELGRID_URL"); v != "" {
		cfg.URL = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Serve.Postgres.DatabaseURL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Serve.Postgres.RedisAddr = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values commands rely on.
func (c *Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("config: size must be positive, got %d", c.Size)
	}
	switch c.Serve.Backend {
	case BackendSQLite, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q (want %s, %s or %s)",
			c.Serve.Backend, BackendSQLite, BackendPostgres, BackendMemory)
	}
	return nil
}
