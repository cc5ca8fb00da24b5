package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"

	"github.com/vpnda/fio-sync/pkg/http/fio"
	"github.com/vpnda/fio-sync/pkg/services"
)

// DefaultPath is where the CLI looks for its configuration file.
const DefaultPath = "config.yaml"

type FioOptions struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
	DebugHTTP   bool          `yaml:"debug_http"`
}

type SyncOptions struct {
	OverlapDays    int           `yaml:"overlap_days"`
	ChunkDays      int           `yaml:"chunk_days"`
	Concurrency    int           `yaml:"concurrency"`
	RetryConflicts int           `yaml:"retry_conflicts"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
}

// Config holds the application configuration
type Config struct {
	DBPath     string      `yaml:"db_path"`
	DefaultOrg string      `yaml:"default_org"`
	LogLevel   string      `yaml:"log_level"`
	Fio        FioOptions  `yaml:"fio"`
	Sync       SyncOptions `yaml:"sync"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DBPath:     "fio-sync.db",
		DefaultOrg: "default",
		LogLevel:   zerolog.LevelInfoValue,
		Fio: FioOptions{
			BaseURL:     fio.DefaultBaseURL,
			Timeout:     fio.DefaultTimeout,
			MinInterval: fio.DefaultMinInterval,
		},
		Sync: SyncOptions{
			OverlapDays:   services.DefaultOverlapDays,
			ChunkDays:     services.DefaultChunkDays,
			Concurrency:   1,
			RetryInterval: fio.DefaultMinInterval,
		},
	}
}

// LoadConfig reads the configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

// Load reads the configuration at configPath. When the file does not exist
// the defaults are written there and returned.
func Load(configPath string) (*Config, error) {
	config, err := LoadConfig(configPath)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	config = Default()
	if err := config.Save(configPath); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks the ranges the sync core accepts.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path must be set"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if strings.TrimSpace(c.Fio.BaseURL) == "" {
		errs = append(errs, errors.New("fio.base_url must be set"))
	}
	if c.Fio.Timeout < 0 {
		errs = append(errs, errors.New("fio.timeout must not be negative"))
	}
	if c.Sync.OverlapDays < 0 || c.Sync.OverlapDays > services.MaxOverlapDays {
		errs = append(errs, fmt.Errorf("sync.overlap_days must be between 0 and %d", services.MaxOverlapDays))
	}
	if c.Sync.ChunkDays < 0 || c.Sync.ChunkDays > services.MaxChunkDays {
		errs = append(errs, fmt.Errorf("sync.chunk_days must be between 0 and %d", services.MaxChunkDays))
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, errors.New("sync.concurrency must be at least 1"))
	}
	if c.Sync.RetryConflicts < 0 {
		errs = append(errs, errors.New("sync.retry_conflicts must not be negative"))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, info if it cannot be parsed.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// SyncerOptions maps the configuration onto the syncer defaults.
func (c *Config) SyncerOptions() services.Options {
	return services.Options{
		DefaultOrg:     c.DefaultOrg,
		OverlapDays:    c.Sync.OverlapDays,
		ChunkDays:      c.Sync.ChunkDays,
		Concurrency:    c.Sync.Concurrency,
		RetryConflicts: c.Sync.RetryConflicts,
		RetryInterval:  c.Sync.RetryInterval,
	}
}

// FioClientOptions maps the configuration onto fio client options.
func (c *Config) FioClientOptions(logger zerolog.Logger) []fio.ClientOption {
	opts := []fio.ClientOption{
		fio.WithBaseURL(c.Fio.BaseURL),
		fio.WithMinInterval(c.Fio.MinInterval),
		fio.WithLogger(logger),
		fio.WithDebug(c.Fio.DebugHTTP),
	}
	if c.Fio.Timeout > 0 {
		opts = append(opts, fio.WithTimeout(c.Fio.Timeout))
	}
	return opts
}
