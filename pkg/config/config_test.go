package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanDuration)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.AwaitServices)
	assert.Equal(t, "", cfg.NameFilter)
	assert.Equal(t, "", cfg.AdapterID)
	assert.Equal(t, FormatTable, cfg.OutputFormat)
	assert.False(t, cfg.WriteWithoutResponse)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
scan_duration: 3s
connect_timeout: 1m
await_services: false
name_filter: windtrax
adapter_id: hci1
output_format: json
write_without_response: true
service_uuid: 0000FFF0-0000-1000-8000-00805F9B34FB
characteristic_uuid: "0xFFF1"
`)
		cfg, err := Load(path, false)

		require.NoError(t, err)
		assert.Equal(t, &Config{
			LogLevel:             "debug",
			ScanDuration:         3 * time.Second,
			ConnectTimeout:       time.Minute,
			AwaitServices:        false,
			NameFilter:           "windtrax",
			AdapterID:            "hci1",
			OutputFormat:         FormatJSON,
			WriteWithoutResponse: true,
			ServiceUUID:          "fff0",
			CharacteristicUUID:   "fff1",
		}, cfg, "UUIDs MUST be loaded in normalized form")
	})

	t.Run("absent keys keep defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "name_filter: windtrax\n"), false)

		require.NoError(t, err)
		assert.Equal(t, "windtrax", cfg.NameFilter)
		assert.Equal(t, 10*time.Second, cfg.ScanDuration)
		assert.True(t, cfg.AwaitServices, "await_services MUST stay true unless set")
	})

	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("", false)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("missing optional file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), true)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("missing required file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "scan_duration: [\n"), false)
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "output_format: xml\n"), false)
		assert.ErrorContains(t, err, "output_format")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "defaults", mutate: func(*Config) {}, valid: true},
		{name: "json format", mutate: func(c *Config) { c.OutputFormat = FormatJSON }, valid: true},
		{name: "unknown format", mutate: func(c *Config) { c.OutputFormat = "csv" }},
		{name: "zero scan duration", mutate: func(c *Config) { c.ScanDuration = 0 }},
		{name: "negative connect timeout disables it", mutate: func(c *Config) { c.ConnectTimeout = -1 }, valid: true},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "trace" }},
		{name: "pinned 16-bit pair", mutate: func(c *Config) { c.ServiceUUID, c.CharacteristicUUID = "fff0", "FFF1" }, valid: true},
		{name: "pinned 128-bit characteristic", mutate: func(c *Config) { c.CharacteristicUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" }, valid: true},
		{name: "short service uuid", mutate: func(c *Config) { c.ServiceUUID = "ff0" }},
		{name: "non-hex characteristic uuid", mutate: func(c *Config) { c.CharacteristicUUID = "zzzz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "silent by default", logLevel: "", expected: logrus.PanicLevel},
		{name: "debug", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "info", logLevel: "info", expected: logrus.InfoLevel},
		{name: "warn", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "error", logLevel: "error", expected: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := (&Config{LogLevel: tt.logLevel}).NewLogger()

			assert.Equal(t, tt.expected, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
