package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/alepar/airthings/airthings/coordinator"
)

// Config holds application configuration
type Config struct {
	// DeviceID skips the manufacturer scan and matches the device by id prefix
	DeviceID   string `yaml:"device_id"`
	ListenAddr string `yaml:"listen_address" default:":8080"`
	LogLevel   string `yaml:"log_level" default:"info"`

	CacheTTL       time.Duration `yaml:"cache_ttl" default:"4m"`
	LockTimeout    time.Duration `yaml:"lock_timeout" default:"30s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"2s"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" default:"1s"`
	MaxRetries     int           `yaml:"max_retries" default:"5"`

	ScanDuration time.Duration `yaml:"scan_duration" default:"5s"`
	ScanRetries  int           `yaml:"scan_retries" default:"5"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration from defaults, the optional yaml file at path
// and the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DEVICE_ID"); ok {
		c.DeviceID = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.ListenAddr = ":" + v
	}
	if v, ok := lookup("LISTEN_ADDR"); ok && v != "" {
		c.ListenAddr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"CACHE_TTL", &c.CacheTTL},
		{"LOCK_TIMEOUT", &c.LockTimeout},
		{"CONNECT_TIMEOUT", &c.ConnectTimeout},
		{"READ_TIMEOUT", &c.ReadTimeout},
		{"RETRY_BACKOFF", &c.RetryBackoff},
		{"SCAN_DURATION", &c.ScanDuration},
	}
	for _, d := range durations {
		v, ok := lookup(d.env)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", d.env)
		}
		*d.dst = parsed
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"MAX_RETRIES", &c.MaxRetries},
		{"SCAN_RETRIES", &c.ScanRetries},
	}
	for _, i := range ints {
		v, ok := lookup(i.env)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", i.env)
		}
		*i.dst = parsed
	}

	return nil
}

// Validate rejects configurations the coordinator cannot run with.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"cache_ttl":       c.CacheTTL,
		"lock_timeout":    c.LockTimeout,
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
		"scan_duration":   c.ScanDuration,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.RetryBackoff < 0 {
		return errors.Errorf("retry_backoff must not be negative, got %s", c.RetryBackoff)
	}
	if c.MaxRetries < 1 {
		return errors.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.ScanRetries < 1 {
		return errors.Errorf("scan_retries must be at least 1, got %d", c.ScanRetries)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log_level")
	}
	return nil
}

func (c *Config) Policy() coordinator.Policy {
	return coordinator.Policy{
		CacheTTL:       c.CacheTTL,
		LockTimeout:    c.LockTimeout,
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		RetryBackoff:   c.RetryBackoff,
		MaxRetries:     c.MaxRetries,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
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
