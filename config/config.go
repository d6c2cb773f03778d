package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"election-backend/storage"
)

type ctxKey string

const configContextKey ctxKey = "election.config"

const (
	DefaultShutdownTimeout = "15s"
	DefaultPort            = 8080
	envPrefix              = "election"
)

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
	BindAddr        string        `yaml:"bindAddr"        split_words:"true"`
	Port            uint          `yaml:"port"`
	ShutdownTimeout string        `yaml:"shutdownTimeout" split_words:"true"`
	Debug           bool          `yaml:"debug"`
	Storage         StorageConfig `yaml:"storage"`
	Voting          VotingConfig  `yaml:"voting"`
	Queue           QueueConfig   `yaml:"queue"`
	Metrics         MetricsConfig `yaml:"metrics"`
}

type StorageConfig struct {
	// Backend is one of memory, json, badger, bolt, sqlite or postgres
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"     envconfig:"DSN"`
}

type VotingConfig struct {
	RequireRegistration bool `yaml:"requireRegistration" split_words:"true"`
}

// QueueConfig sizes the asynchronous vote queue used by batch submissions
type QueueConfig struct {
	Size    int `yaml:"size"`
	Workers int `yaml:"workers"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr:        "0.0.0.0",
		Port:            DefaultPort,
		ShutdownTimeout: DefaultShutdownTimeout,
		Storage: StorageConfig{
			Backend: storage.BackendJSON,
			Path:    ".election",
		},
		Voting: VotingConfig{
			RequireRegistration: true,
		},
		Queue: QueueConfig{
			Size:    256,
			Workers: 4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig applies, in order, the defaults, the YAML file at configFile
// (if any) and ELECTION_* environment variables.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()

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
	var errs []error
	if c.Port == 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Port))
	}
	if _, err := c.ShutdownDuration(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendJSON, storage.BackendBadger,
		storage.BackendBolt, storage.BackendSQLite:
	case storage.BackendPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage backend postgres requires a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend: %q", c.Storage.Backend))
	}
	if c.Queue.Size < 1 {
		errs = append(errs, fmt.Errorf("queue size must be positive, got %d", c.Queue.Size))
	}
	if c.Queue.Workers < 1 {
		errs = append(errs, fmt.Errorf("queue workers must be positive, got %d", c.Queue.Workers))
	}
	return errors.Join(errs...)
}

func (c *Config) ShutdownDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: %w", c.ShutdownTimeout, err)
	}
	return d, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
