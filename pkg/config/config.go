// Package config loads the YAML configuration file consumed by the
// duracache demo command.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document for a duracache instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this process in its own logs.
type InstanceConfig struct {
	ID      string `yaml:"id"`
	DataDir string `yaml:"data_dir"`
}

// CacheConfig mirrors duracache.Config field for field, in the same units
// (bytes and seconds).
type CacheConfig struct {
	MaxMemoryItems     int     `yaml:"max_memory_items"`
	MaxMemorySizeBytes int64   `yaml:"max_memory_size_bytes"`
	MaxDiskItems       int     `yaml:"max_disk_items"`
	MaxDiskSizeBytes   int64   `yaml:"max_disk_size_bytes"`
	MemoryTTLSeconds   float64 `yaml:"memory_ttl_seconds"`
	DiskTTLSeconds     float64 `yaml:"disk_ttl_seconds"`
	MaxItemSizeBytes   int64   `yaml:"max_item_size_bytes"`
}

// LoggingConfig controls where and how verbosely the demo command logs.
type LoggingConfig struct {
	Level         string `yaml:"level"` // trace, debug, info, warn, error
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogDir        string `yaml:"log_dir"`
	BufferSize    int    `yaml:"buffer_size"`
}

// Load reads and parses path, falling back to defaults for any field the
// file omits and for the file itself when it does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Instance: InstanceConfig{
			ID:      "duracache-demo",
			DataDir: "/tmp/duracache",
		},
		Cache: CacheConfig{
			MaxMemoryItems:     1000,
			MaxMemorySizeBytes: 64 << 20,
			MaxDiskItems:       100000,
			MaxDiskSizeBytes:   1 << 30,
			MemoryTTLSeconds:   300,
			DiskTTLSeconds:     3600,
			MaxItemSizeBytes:   1 << 20,
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			LogDir:        "logs",
			BufferSize:    1000,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("configuration file %s not found, using defaults\n", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports whether cfg's fields describe a usable cache instance.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return fmt.Errorf("instance.id cannot be empty")
	}
	if c.Cache.MaxMemoryItems < 0 || c.Cache.MaxDiskItems < 0 {
		return fmt.Errorf("cache item limits cannot be negative")
	}
	if c.Cache.MaxMemorySizeBytes < 0 || c.Cache.MaxDiskSizeBytes < 0 || c.Cache.MaxItemSizeBytes < 0 {
		return fmt.Errorf("cache size limits cannot be negative")
	}
	if c.Cache.MemoryTTLSeconds < 0 || c.Cache.DiskTTLSeconds < 0 {
		return fmt.Errorf("cache TTLs cannot be negative")
	}
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return true
	default:
		return false
	}
}
