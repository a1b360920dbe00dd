// Package config provides configuration management for s3check.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the checker configuration.
type Config struct {
	Target    TargetConfig    `mapstructure:"target"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Run       RunConfig       `mapstructure:"run"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TargetConfig holds endpoint and credential settings.
type TargetConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
}

// ReadinessConfig holds the readiness-wait retry budget.
type ReadinessConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// RunConfig holds battery behavior settings.
type RunConfig struct {
	Cleanup      bool   `mapstructure:"cleanup"`
	DeleteBucket bool   `mapstructure:"delete_bucket"`
	ReportPath   string `mapstructure:"report_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Endpoint:  "http://localhost:8080",
			Bucket:    "test-bucket",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Region:    "us-east-1",
		},
		Readiness: ReadinessConfig{
			MaxAttempts: 30,
			Delay:       2 * time.Second,
		},
		Run: RunConfig{
			Cleanup: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	// Set defaults
	v.SetDefault("target.endpoint", cfg.Target.Endpoint)
	v.SetDefault("target.bucket", cfg.Target.Bucket)
	v.SetDefault("target.access_key", cfg.Target.AccessKey)
	v.SetDefault("target.secret_key", cfg.Target.SecretKey)
	v.SetDefault("target.region", cfg.Target.Region)
	v.SetDefault("readiness.max_attempts", cfg.Readiness.MaxAttempts)
	v.SetDefault("readiness.delay", cfg.Readiness.Delay)
	v.SetDefault("run.cleanup", cfg.Run.Cleanup)
	v.SetDefault("run.delete_bucket", cfg.Run.DeleteBucket)
	v.SetDefault("run.report_path", cfg.Run.ReportPath)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	// Enable environment variables
	v.SetEnvPrefix("S3CHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/s3check")
	v.AddConfigPath("$HOME/.s3check")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
