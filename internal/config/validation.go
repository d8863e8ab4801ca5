package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Validate broker configuration
	if c.Broker.URL == "" {
		errs = append(errs, &ValidationError{
			Field:   "broker.url",
			Message: "broker URL is required",
		})
	} else if !strings.HasPrefix(c.Broker.URL, "amqp://") && !strings.HasPrefix(c.Broker.URL, "amqps://") {
		errs = append(errs, &ValidationError{
			Field:   "broker.url",
			Message: fmt.Sprintf("broker URL must start with amqp:// or amqps://, got %q", c.Broker.URL),
		})
	}

	if c.Broker.Queue == "" {
		errs = append(errs, &ValidationError{
			Field:   "broker.queue",
			Message: "broker queue name is required",
		})
	}

	if c.Broker.Prefetch < 0 {
		errs = append(errs, &ValidationError{
			Field:   "broker.prefetch",
			Message: fmt.Sprintf("prefetch cannot be negative, got %d", c.Broker.Prefetch),
		})
	}

	// Validate database configuration
	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Validate redis configuration
	if c.Redis.Addr == "" {
		errs = append(errs, &ValidationError{
			Field:   "redis.addr",
			Message: "redis address is required",
		})
	} else {
		host, port, err := net.SplitHostPort(c.Redis.Addr)
		if err != nil {
			errs = append(errs, &ValidationError{
				Field:   "redis.addr",
				Message: fmt.Sprintf("invalid address format (expected host:port): %v", err),
			})
		} else if host == "" || port == "" {
			errs = append(errs, &ValidationError{
				Field:   "redis.addr",
				Message: "redis host and port cannot be empty",
			})
		}
	}

	if c.Redis.DB < 0 {
		errs = append(errs, &ValidationError{
			Field:   "redis.db",
			Message: fmt.Sprintf("db index cannot be negative, got %d", c.Redis.DB),
		})
	}

	// Validate detector configuration
	if c.Detector.HistoryCapacity < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detector.history_capacity",
			Message: fmt.Sprintf("history_capacity must be at least 1, got %d", c.Detector.HistoryCapacity),
		})
	}

	if c.Detector.StatisticalFloor < 2 {
		errs = append(errs, &ValidationError{
			Field:   "detector.statistical_floor",
			Message: fmt.Sprintf("statistical_floor must be at least 2, got %d", c.Detector.StatisticalFloor),
		})
	}

	if c.Detector.ZScoreThreshold <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "detector.zscore_threshold",
			Message: fmt.Sprintf("zscore_threshold must be positive, got %.2f", c.Detector.ZScoreThreshold),
		})
	}

	if c.Detector.ZScoreHighThreshold < c.Detector.ZScoreThreshold {
		errs = append(errs, &ValidationError{
			Field:   "detector.zscore_high_threshold",
			Message: fmt.Sprintf("zscore_high_threshold (%.2f) cannot be below zscore_threshold (%.2f)",
				c.Detector.ZScoreHighThreshold, c.Detector.ZScoreThreshold),
		})
	}

	if c.Detector.IQRMultiplier <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "detector.iqr_multiplier",
			Message: fmt.Sprintf("iqr_multiplier must be positive, got %.2f", c.Detector.IQRMultiplier),
		})
	}

	if c.Detector.MinTrainingSize < 2 {
		errs = append(errs, &ValidationError{
			Field:   "detector.min_training_size",
			Message: fmt.Sprintf("min_training_size must be at least 2, got %d", c.Detector.MinTrainingSize),
		})
	}

	if c.Detector.MinTrainingSize > c.Detector.HistoryCapacity {
		errs = append(errs, &ValidationError{
			Field:   "detector.min_training_size",
			Message: fmt.Sprintf("min_training_size (%d) cannot exceed history_capacity (%d)",
				c.Detector.MinTrainingSize, c.Detector.HistoryCapacity),
		})
	}

	if c.Detector.RetrainIntervalMin < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detector.retrain_interval_min",
			Message: fmt.Sprintf("retrain_interval_min must be at least 1 minute, got %d", c.Detector.RetrainIntervalMin),
		})
	}

	if c.Detector.RelativeError <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "detector.relative_error",
			Message: fmt.Sprintf("relative_error must be positive, got %.2f", c.Detector.RelativeError),
		})
	}

	if c.Detector.RelativeErrorHigh < c.Detector.RelativeError {
		errs = append(errs, &ValidationError{
			Field:   "detector.relative_error_high",
			Message: fmt.Sprintf("relative_error_high (%.2f) cannot be below relative_error (%.2f)",
				c.Detector.RelativeErrorHigh, c.Detector.RelativeError),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	return errs
}

// DetectorConfigured reports whether detector thresholds deviate from the
// defaults. Surfaced in the startup log so tuned deployments are visible.
func (c *Config) DetectorConfigured() bool {
	d := DefaultConfig()
	return c.Detector != d.Detector
}
