package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/device"
	"gopkg.in/yaml.v3"
)

// Output formats understood by the CLI
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config holds application configuration
type Config struct {
	// LogLevel is one of debug, info, warn, error; empty keeps logging silent.
	LogLevel             string        `yaml:"log_level"`
	ScanDuration         time.Duration `yaml:"scan_duration" default:"10s"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" default:"30s"`
	AwaitServices        bool          `yaml:"await_services" default:"true"`
	NameFilter           string        `yaml:"name_filter"`
	AdapterID            string        `yaml:"adapter_id"`
	OutputFormat         string        `yaml:"output_format" default:"table"`
	WriteWithoutResponse bool          `yaml:"write_without_response" default:"false"`
	// ServiceUUID and CharacteristicUUID pin the write target; either may be empty.
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath is $HOME/.config/fanlink/config.yaml, or empty when there is no home directory
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fanlink", "config.yaml")
}

// Load reads path over the defaults. An empty path yields the defaults; with
// optional set, a missing file does too.
func Load(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.NormalizeUUIDs()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that the defaults cannot guarantee
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanDuration <= 0 {
		return fmt.Errorf("scan_duration must be positive, got %s", c.ScanDuration)
	}
	switch c.OutputFormat {
	case FormatTable, FormatJSON:
	default:
		return fmt.Errorf("output_format must be %s or %s, got %q", FormatTable, FormatJSON, c.OutputFormat)
	}
	if err := checkUUID("service_uuid", c.ServiceUUID); err != nil {
		return err
	}
	return checkUUID("characteristic_uuid", c.CharacteristicUUID)
}

// NormalizeUUIDs rewrites the UUID fields in device.NormalizeUUID form
func (c *Config) NormalizeUUIDs() {
	c.ServiceUUID = device.NormalizeUUID(c.ServiceUUID)
	c.CharacteristicUUID = device.NormalizeUUID(c.CharacteristicUUID)
}

// checkUUID accepts empty, 16-bit, 32-bit and 128-bit UUIDs
func checkUUID(field, uuid string) error {
	u := device.NormalizeUUID(uuid)
	switch len(u) {
	case 0:
		return nil
	case 4, 8, 32:
	default:
		return fmt.Errorf("%s must be a 16, 32 or 128-bit UUID, got %q", field, uuid)
	}
	if _, err := hex.DecodeString(u); err != nil {
		return fmt.Errorf("%s must be hexadecimal, got %q", field, uuid)
	}
	return nil
}

// ParseLevel maps a level name to logrus; empty means silent
func ParseLevel(level string) (logrus.Level, error) {
	switch level {
	case "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
