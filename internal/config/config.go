package config

import (
	"fmt"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ClientConfig struct {
	BaseURL            string `yaml:"base_url" env:"PRODUCT_SYNC_CLIENT_BASE_URL"`
	IntervalSeconds    int    `yaml:"interval_seconds" env:"PRODUCT_SYNC_CLIENT_INTERVAL_SECONDS"`
	Strategy           string `yaml:"strategy" env:"PRODUCT_SYNC_CLIENT_STRATEGY"`
	SnapshotFile       string `yaml:"snapshot_file" env:"PRODUCT_SYNC_CLIENT_SNAPSHOT_FILE"`
	ResolveParallelism int    `yaml:"resolve_parallelism" env:"PRODUCT_SYNC_CLIENT_RESOLVE_PARALLELISM"`
	RequestTimeoutSec  int    `yaml:"request_timeout_seconds" env:"PRODUCT_SYNC_CLIENT_REQUEST_TIMEOUT_SECONDS"`
}

type Config struct {
	Port           string       `yaml:"port" env:"PORT,PRODUCT_SYNC_PORT"`
	LogLevel       string       `yaml:"log_level" env:"PRODUCT_SYNC_LOG_LEVEL"`
	DatabaseDriver string       `yaml:"database_driver" env:"PRODUCT_SYNC_DATABASE_DRIVER"`
	DatabaseURL    string       `yaml:"database_url" env:"PRODUCT_SYNC_DATABASE_URL,DATABASE_URL"`
	AutoMigrate    bool         `yaml:"auto_migrate" env:"PRODUCT_SYNC_AUTO_MIGRATE"`
	Client         ClientConfig `yaml:"client"`
}

func Defaults() Config {
	return Config{
		Port:           "8090",
		LogLevel:       "info",
		DatabaseDriver: DriverSQLite,
		DatabaseURL:    "file:products.db",
		AutoMigrate:    true,
		Client: ClientConfig{
			BaseURL:            "http://localhost:8090/api/v1",
			IntervalSeconds:    30,
			Strategy:           "server-wins",
			ResolveParallelism: 4,
			RequestTimeoutSec:  15,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// PRODUCT_SYNC_CONFIG (if any), then the environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("PRODUCT_SYNC_CONFIG"))
}

// LoadFrom is Load with an explicit config file path; an empty path skips the
// file.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if _, err := env.UnmarshalFromEnviron(&cfg.Client); err != nil {
		return Config{}, fmt.Errorf("read client environment: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func normalize(cfg *Config) {
	d := Defaults()
	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = d.Port
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = d.DatabaseDriver
	}
	cfg.Client.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Client.BaseURL), "/")
	if cfg.Client.IntervalSeconds <= 0 {
		cfg.Client.IntervalSeconds = d.Client.IntervalSeconds
	}
	if cfg.Client.ResolveParallelism <= 0 {
		cfg.Client.ResolveParallelism = d.Client.ResolveParallelism
	}
	if cfg.Client.RequestTimeoutSec <= 0 {
		cfg.Client.RequestTimeoutSec = d.Client.RequestTimeoutSec
	}
	if strings.TrimSpace(cfg.Client.Strategy) == "" {
		cfg.Client.Strategy = d.Client.Strategy
	}
}

func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database url is required")
	}
	return nil
}
