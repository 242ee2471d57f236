package sealbox

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config configures a Sealbox instance.
type Config struct {
	// StorePath is the data directory for the badger-backed local store.
	// Only used by Open; ignored when the caller provides its own store.
	StorePath string `yaml:"store_path"`
	// MinimumFreeGB is a free-space threshold checked when opening the
	// local store. Zero disables the check.
	MinimumFreeGB uint `yaml:"minimum_free_gb"`
	// Concurrency bounds simultaneous store requests. Defaults to 8.
	Concurrency int `yaml:"concurrency"`
	// MaxAttempts is the retry budget per store request. Defaults to 3.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseBackoff is the delay before the first retry, doubling per
	// attempt. Defaults to 250ms.
	BaseBackoff time.Duration `yaml:"base_backoff"`
	// RequestTimeout bounds each individual store request. Zero means no
	// per-request timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Logger is an optional logger. If nil, a default logrus logger is used.
	Logger *logrus.Logger `yaml:"-"`
}

// DefaultConfig returns a Config with the documented defaults filled in.
// Zero values in a hand-built Config fall back to the same defaults, so
// calling this is optional.
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		MaxAttempts: 3,
		BaseBackoff: 250 * time.Millisecond,
		Logger:      logrus.New(),
	}
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return config, nil
}
