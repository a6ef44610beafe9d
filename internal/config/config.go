package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr      = ":8080"
	DefaultUploadDir = "upload-dir"
	DefaultLogLevel  = "info"

	DefaultMaxUploadBytes     int64 = 20 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024

	DefaultCacheCapacity      = 256
	DefaultCacheTTLSeconds    = 30 * 60
	DefaultCacheMaxEntryBytes int64 = 4 * 1024 * 1024

	DefaultMaxGenerations = 4

	uploadDirEnvKey = "IMAGEBACK_UPLOAD_DIR"
	logLevelEnvKey  = "IMAGEBACK_LOG_LEVEL"
)

// CacheConfig sizes the in-memory variant cache.
type CacheConfig struct {
	Capacity      int   `yaml:"capacity"`
	TTLSeconds    int   `yaml:"ttl_seconds"`
	MaxEntryBytes int64 `yaml:"max_entry_bytes"`
}

// Config defines runtime configuration for the image server.
type Config struct {
	Addr               string   `yaml:"addr"`
	UploadDir          string   `yaml:"upload_dir"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	LogLevel           string   `yaml:"log_level"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes"`
	MultipartMaxMemory int64    `yaml:"multipart_max_memory"`
	// MaxGenerations caps the number of dynamic resizes decoding and
	// scaling pixels at the same time across all requests.
	MaxGenerations int         `yaml:"max_generations"`
	Cache          CacheConfig `yaml:"cache"`
}

// Default returns the compiled-in configuration values.
func Default() Config {
	return Config{
		Addr:               DefaultAddr,
		UploadDir:          DefaultUploadDir,
		LogLevel:           DefaultLogLevel,
		MaxUploadBytes:     DefaultMaxUploadBytes,
		MultipartMaxMemory: DefaultMultipartMaxMemory,
		MaxGenerations:     DefaultMaxGenerations,
		Cache: CacheConfig{
			Capacity:      DefaultCacheCapacity,
			TTLSeconds:    DefaultCacheTTLSeconds,
			MaxEntryBytes: DefaultCacheMaxEntryBytes,
		},
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (if non-empty), overlaid by environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if dir := os.Getenv(uploadDirEnvKey); dir != "" {
		cfg.UploadDir = dir
	}
	if level := os.Getenv(logLevelEnvKey); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxGenerations <= 0 {
		return fmt.Errorf("max_generations must be positive, got %d", c.MaxGenerations)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	return nil
}
