// Package config provides configuration management for the detector service.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading for tunable settings
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (GRIDPULSE_* prefix)
//  2. YAML config files (default: /etc/gridpulse/config.yaml)
//  3. Built-in defaults (lowest priority)
package config

import "context"

// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Port int
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
	}

	// Broker configuration (RabbitMQ telemetry ingestion)
	Broker struct {
		URL        string
		Exchange   string
		Queue      string
		RoutingKey string
		Prefetch   int
	}

	// Database configuration
	Database struct {
		SQLitePath string
	}

	// Redis configuration (device registry)
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Detector configuration
	Detector struct {
		HistoryCapacity     int
		StatisticalFloor    int
		ZScoreThreshold     float64
		ZScoreHighThreshold float64
		IQRMultiplier       float64
		MinTrainingSize     int
		RetrainIntervalMin  int
		RelativeError       float64
		RelativeErrorHigh   float64
	}

	// Logging configuration
	Logging struct {
		Level      string
		FilePath   string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/gridpulse/config.yaml")
}
