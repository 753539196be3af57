package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/airthings/airthings/coordinator"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "", cfg.DeviceID)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.LockTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.ScanDuration)
	assert.Equal(t, 5, cfg.ScanRetries)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, coordinator.DefaultPolicy(), cfg.Policy())
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"DEVICE_ID":    "a4da32",
		"PORT":         "9090",
		"LOCK_TIMEOUT": "45s",
		"CACHE_TTL":    "1m",
		"MAX_RETRIES":  "7",
		"LOG_LEVEL":    "debug",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, "a4da32", cfg.DeviceID)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 45*time.Second, cfg.LockTimeout)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
}

func TestConfig_ApplyEnvListenAddrWinsOverPort(t *testing.T) {
	env := map[string]string{"PORT": "9090", "LISTEN_ADDR": "127.0.0.1:8081"}
	cfg := DefaultConfig()
	require.NoError(t, cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}))

	assert.Equal(t, "127.0.0.1:8081", cfg.ListenAddr)
}

func TestConfig_ApplyEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{name: "bad duration", env: "LOCK_TIMEOUT", val: "soon"},
		{name: "bad int", env: "MAX_RETRIES", val: "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.applyEnv(func(key string) (string, bool) {
				if key == tt.env {
					return tt.val, true
				}
				return "", false
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waveplus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_id: "a4:da:32:11:22:33"
listen_address: ":9100"
cache_ttl: 2m
lock_timeout: 15s
max_retries: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "a4:da:32:11:22:33", cfg.DeviceID)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 15*time.Second, cfg.LockTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waveplus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache_ttl: 2m\n"), 0o600))
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero ttl", mutate: func(c *Config) { c.CacheTTL = 0 }},
		{name: "negative lock timeout", mutate: func(c *Config) { c.LockTimeout = -time.Second }},
		{name: "zero read timeout", mutate: func(c *Config) { c.ReadTimeout = 0 }},
		{name: "negative backoff", mutate: func(c *Config) { c.RetryBackoff = -time.Second }},
		{name: "no retries", mutate: func(c *Config) { c.MaxRetries = 0 }},
		{name: "no scan retries", mutate: func(c *Config) { c.ScanRetries = 0 }},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "debug", logLevel: "debug", want: logrus.DebugLevel},
		{name: "info", logLevel: "info", want: logrus.InfoLevel},
		{name: "warn", logLevel: "warn", want: logrus.WarnLevel},
		{name: "error", logLevel: "error", want: logrus.ErrorLevel},
		{name: "falls back to info", logLevel: "loud", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
