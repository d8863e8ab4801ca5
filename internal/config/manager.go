package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("GRIDPULSE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults plus env vars are enough to run.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// use defaults
		} else if os.IsNotExist(err) {
			// use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Broker defaults
	m.viper.SetDefault("broker.url", defaults.Broker.URL)
	m.viper.SetDefault("broker.exchange", defaults.Broker.Exchange)
	m.viper.SetDefault("broker.queue", defaults.Broker.Queue)
	m.viper.SetDefault("broker.routing_key", defaults.Broker.RoutingKey)
	m.viper.SetDefault("broker.prefetch", defaults.Broker.Prefetch)

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Redis defaults
	m.viper.SetDefault("redis.addr", defaults.Redis.Addr)
	m.viper.SetDefault("redis.password", defaults.Redis.Password)
	m.viper.SetDefault("redis.db", defaults.Redis.DB)

	// Detector defaults
	m.viper.SetDefault("detector.history_capacity", defaults.Detector.HistoryCapacity)
	m.viper.SetDefault("detector.statistical_floor", defaults.Detector.StatisticalFloor)
	m.viper.SetDefault("detector.zscore_threshold", defaults.Detector.ZScoreThreshold)
	m.viper.SetDefault("detector.zscore_high_threshold", defaults.Detector.ZScoreHighThreshold)
	m.viper.SetDefault("detector.iqr_multiplier", defaults.Detector.IQRMultiplier)
	m.viper.SetDefault("detector.min_training_size", defaults.Detector.MinTrainingSize)
	m.viper.SetDefault("detector.retrain_interval_min", defaults.Detector.RetrainIntervalMin)
	m.viper.SetDefault("detector.relative_error", defaults.Detector.RelativeError)
	m.viper.SetDefault("detector.relative_error_high", defaults.Detector.RelativeErrorHigh)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.file_path", defaults.Logging.FilePath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	// Broker
	cfg.Broker.URL = m.viper.GetString("broker.url")
	cfg.Broker.Exchange = m.viper.GetString("broker.exchange")
	cfg.Broker.Queue = m.viper.GetString("broker.queue")
	cfg.Broker.RoutingKey = m.viper.GetString("broker.routing_key")
	cfg.Broker.Prefetch = m.viper.GetInt("broker.prefetch")

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Redis
	cfg.Redis.Addr = m.viper.GetString("redis.addr")
	cfg.Redis.Password = m.viper.GetString("redis.password")
	cfg.Redis.DB = m.viper.GetInt("redis.db")

	// Detector
	cfg.Detector.HistoryCapacity = m.viper.GetInt("detector.history_capacity")
	cfg.Detector.StatisticalFloor = m.viper.GetInt("detector.statistical_floor")
	cfg.Detector.ZScoreThreshold = m.viper.GetFloat64("detector.zscore_threshold")
	cfg.Detector.ZScoreHighThreshold = m.viper.GetFloat64("detector.zscore_high_threshold")
	cfg.Detector.IQRMultiplier = m.viper.GetFloat64("detector.iqr_multiplier")
	cfg.Detector.MinTrainingSize = m.viper.GetInt("detector.min_training_size")
	cfg.Detector.RetrainIntervalMin = m.viper.GetInt("detector.retrain_interval_min")
	cfg.Detector.RelativeError = m.viper.GetFloat64("detector.relative_error")
	cfg.Detector.RelativeErrorHigh = m.viper.GetFloat64("detector.relative_error_high")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.FilePath = m.viper.GetString("logging.file_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// Broker URL carries credentials, so it gets a direct override.
	if url := os.Getenv("GRIDPULSE_BROKER_URL"); url != "" {
		m.config.Broker.URL = url
	}

	if password := os.Getenv("GRIDPULSE_REDIS_PASSWORD"); password != "" {
		m.config.Redis.Password = password
	}

	if addr := os.Getenv("GRIDPULSE_REDIS_ADDR"); addr != "" {
		m.config.Redis.Addr = addr
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("GRIDPULSE_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}
