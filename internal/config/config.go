// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// ErrProviderAPIKeyRequired is returned when PROVIDER_API_KEY is not set.
var ErrProviderAPIKeyRequired = errors.New("config: PROVIDER_API_KEY is required")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Provider settings
	ProviderAPIKey  string `env:"PROVIDER_API_KEY, required" json:"-"` // Masked in JSON
	ProviderBaseURL string `env:"PROVIDER_BASE_URL" json:"provider_base_url,omitempty"`

	// Generation settings
	GenerationCost  int64         `env:"GENERATION_COST, default=10" json:"generation_cost"`
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=5s" json:"poll_interval"`
	MaxPollAttempts int           `env:"MAX_POLL_ATTEMPTS, default=60" json:"max_poll_attempts"`

	// Media settings
	MaxVideoBytes   int64         `env:"MAX_VIDEO_BYTES, default=209715200" json:"max_video_bytes"`
	MaxDurationSec  float64       `env:"MAX_DURATION_SEC, default=0" json:"max_duration_sec"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT, default=60s" json:"download_timeout"`
	FFprobePath     string        `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`

	// Storage settings
	StorageBucket      string `env:"STORAGE_BUCKET, default=reelforge-videos" json:"storage_bucket"`
	LocalStorageDir    string `env:"LOCAL_STORAGE_DIR" json:"local_storage_dir,omitempty"`
	PublicBaseURL      string `env:"PUBLIC_BASE_URL, default=http://localhost:8080/assets" json:"public_base_url"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		if strings.Contains(err.Error(), "PROVIDER_API_KEY") {
			return nil, ErrProviderAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.ProviderAPIKey == "" {
		return ErrProviderAPIKeyRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GenerationCost: %d, PollInterval: %s, MaxPollAttempts: %d, MaxVideoBytes: %d, StorageBucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.GenerationCost,
		c.PollInterval,
		c.MaxPollAttempts,
		c.MaxVideoBytes,
		c.StorageBucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
