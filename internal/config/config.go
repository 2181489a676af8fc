// Package config loads the application settings from an optional config
// file and SB_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/example/surveybatch/internal/storage"
)

// Settings holds the full application configuration
type Settings struct {
	Storage    storage.Config   `mapstructure:"storage"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ProcessingConfig describes the external processing tool and its limits
type ProcessingConfig struct {
	Command        string   `mapstructure:"command"`
	ExtraArgs      []string `mapstructure:"extraArgs"`
	TimeoutSeconds int      `mapstructure:"timeoutSeconds"`
	WorkerCount    int      `mapstructure:"workerCount"`
}

// ArchiveConfig holds the retention thresholds in days
type ArchiveConfig struct {
	ProjectMaxAgeDays int `mapstructure:"projectMaxAgeDays"`
	BatchMaxAgeDays   int `mapstructure:"batchMaxAgeDays"`
}

// LoggingConfig controls log output and rotation
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

// EventsConfig controls the progress event endpoint
type EventsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local.basePath", "./data")
	v.SetDefault("processing.command", "survey-convert")
	v.SetDefault("processing.timeoutSeconds", 600)
	v.SetDefault("processing.workerCount", runtime.NumCPU())
	v.SetDefault("archive.projectMaxAgeDays", 60)
	v.SetDefault("archive.batchMaxAgeDays", 90)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.maxSizeMB", 100)
	v.SetDefault("logging.maxBackups", 3)
	v.SetDefault("logging.maxAgeDays", 28)
	v.SetDefault("events.addr", ":8090")
}

// Load reads settings from the given file (optional, format detected from
// the extension) and from SB_-prefixed environment variables. Environment
// variables override file values: SB_STORAGE_PROVIDER, SB_LOGGING_LEVEL...
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("surveybatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	switch s.Storage.Provider {
	case "", "local", "s3", "gcs":
	default:
		return fmt.Errorf("unknown storage provider %q", s.Storage.Provider)
	}
	if s.Processing.Command == "" {
		return errors.New("processing.command must be set")
	}
	if s.Processing.TimeoutSeconds <= 0 {
		return errors.New("processing.timeoutSeconds must be positive")
	}
	switch s.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", s.Logging.Format)
	}
	return nil
}
