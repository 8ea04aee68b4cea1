// Package config provides configuration management for the cumulus
// scheduler core: worker pool sizing, checksummed log placement, and the
// machine/client identity seed used to derive opaque ids.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for a cumulus process.
type Config struct {
	Worker    WorkerConfig    `mapstructure:"worker"`
	Log       SharedLogConfig `mapstructure:"log"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	BigVector BigVectorConfig `mapstructure:"bigvector"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// WorkerConfig holds worker thread pool configuration.
type WorkerConfig struct {
	// PoolSize is the number of worker goroutines in the worker pool.
	PoolSize int `mapstructure:"pool_size"`
	// CheckoutTimeoutSeconds is loaded and defaulted, but nothing in the
	// scheduler or the worker pool reads it.
	CheckoutTimeoutSeconds int `mapstructure:"checkout_timeout_seconds"`
}

// SharedLogConfig holds checksummed log configuration.
type SharedLogConfig struct {
	// Dir is the directory holding log segment files.
	Dir string `mapstructure:"dir"`
	// MaxOpenFiles bounds the LRU-cached set of open file handles.
	MaxOpenFiles int `mapstructure:"max_open_files"`
	// FlushIntervalMillis is loaded and validated but not passed to the
	// checksummed log, whose background flush loop runs every second.
	FlushIntervalMillis int `mapstructure:"flush_interval_millis"`
}

// IdentityConfig holds the seed used to derive this process's machine and
// client identity. MachineId and CumulusClientId are content hashes over
// this seed plus a generated salt, not freestanding random values.
type IdentityConfig struct {
	// Seed identifies this machine/process across restarts (e.g. a
	// hostname or a provisioned cluster slot name). Empty is used as is:
	// the machine id then depends only on the per-process random salt.
	Seed string `mapstructure:"seed"`
}

// BigVectorConfig holds page/fragment sizing knobs for BigVectorHandle.
type BigVectorConfig struct {
	// PageSizeBytes is loaded and validated; pkg/bigvector does not read it.
	PageSizeBytes int64 `mapstructure:"page_size_bytes"`
	// FragmentCacheSlots is loaded and validated; BigVectorHandle does not
	// read it and always keeps a fixed two-slot cache.
	FragmentCacheSlots int `mapstructure:"fragment_cache_slots"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/cumulus")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.pool_size", 4)
	v.SetDefault("worker.checkout_timeout_seconds", 5)

	v.SetDefault("log.dir", "./data/log")
	v.SetDefault("log.max_open_files", 64)
	v.SetDefault("log.flush_interval_millis", 1000)

	v.SetDefault("identity.seed", "")

	v.SetDefault("bigvector.page_size_bytes", int64(32*1024*1024))
	v.SetDefault("bigvector.fragment_cache_slots", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Worker.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Log.MaxOpenFiles < 1 {
		return fmt.Errorf("log max open files must be at least 1")
	}
	if c.Log.FlushIntervalMillis < 1 {
		return fmt.Errorf("log flush interval must be at least 1ms")
	}
	if c.BigVector.PageSizeBytes < 1 {
		return fmt.Errorf("bigvector page size must be positive")
	}
	if c.BigVector.FragmentCacheSlots < 1 {
		return fmt.Errorf("bigvector fragment cache slots must be at least 1")
	}
	return nil
}

// EnsureLogDir creates the checksummed log directory if it doesn't exist.
func (c *Config) EnsureLogDir() error {
	if c.Log.Dir == "" {
		return nil
	}
	return os.MkdirAll(c.Log.Dir, 0755)
}

// SegmentPath returns the path of a named log segment within the log dir.
func (c *Config) SegmentPath(name string) string {
	return filepath.Join(c.Log.Dir, name)
}
