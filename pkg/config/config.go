package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/fsbridge/internal/protocol"
	"github.com/marmos91/fsbridge/pkg/adapter/webrtc"
	"github.com/marmos91/fsbridge/pkg/search"
	"github.com/marmos91/fsbridge/pkg/upload"
)

// Config represents the complete fsbridge worker configuration.
//
// This structure captures all configurable aspects of the worker:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics)
//   - Mount definitions, the only directories peers may touch
//   - Listing, search, upload and transfer tuning
//   - Peer adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FSBRIDGE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// The upload cache follows the store pattern: upload.cache.type selects the
// implementation and only the matching type-specific section is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Mounts lists the directories exposed to peers
	Mounts []MountConfig `mapstructure:"mounts" validate:"dive"`

	// Listing tunes directory pagination
	Listing ListingConfig `mapstructure:"listing"`

	// Search bounds path resolution
	Search search.Config `mapstructure:"search"`

	// Upload configures upload sessions and the content-hash cache
	Upload UploadConfig `mapstructure:"upload"`

	// Transfer tunes outbound downloads
	Transfer protocol.TransferConfig `mapstructure:"transfer"`

	// Adapters contains peer adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for adapters to stop
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// MountConfig is one exposed directory.
type MountConfig struct {
	// Path is the directory root. Symlinks are resolved at startup.
	Path string `mapstructure:"path" validate:"required"`

	// Label is the name peers use to filter searches. Defaults to the base
	// name of Path.
	Label string `mapstructure:"label"`
}

// ListingConfig tunes directory pagination.
type ListingConfig struct {
	PageSize int `mapstructure:"page_size" validate:"gte=0"`
}

// UploadConfig configures upload sessions and the upload cache.
type UploadConfig struct {
	upload.Config `mapstructure:",squash"`

	// Cache selects and configures the content-hash cache
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig specifies upload cache configuration.
//
// The Type field determines which implementation is used.
// Only the corresponding type-specific section is used.
type CacheConfig struct {
	// Type specifies which cache implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains in-memory cache options (currently none)
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB cache options
	// Keys: db_path (required unless in_memory), in_memory
	Badger map[string]any `mapstructure:"badger"`
}

// AdaptersConfig contains all peer adapter configurations.
type AdaptersConfig struct {
	// WebRTC uses the adapter's own config type to avoid duplication.
	WebRTC webrtc.Config `mapstructure:"webrtc"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and the config file location.
func setupViper(v *viper.Viper, configPath string) {
	// FSBRIDGE_LOGGING_LEVEL=DEBUG overrides logging.level
	v.SetEnvPrefix("FSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	// $XDG_CONFIG_HOME/fsbridge/config.{yaml,toml}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists. A missing file
// at the default location is not an error.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns XDG_CONFIG_HOME/fsbridge, ~/.config/fsbridge, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fsbridge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fsbridge")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
