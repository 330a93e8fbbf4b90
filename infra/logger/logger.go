package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	corelogger "github.com/kilianp07/enrollmail/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the logging backend and verbosity.
type Config struct {
	// Backend is "zerolog" or "logrus".
	Backend string `json:"backend"`
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format forces "console" or "json"; empty follows APP_ENV.
	Format string `json:"format"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "zerolog"
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
			c.Format = "console"
		} else {
			c.Format = "json"
		}
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	switch c.Backend {
	case "zerolog", "logrus":
	default:
		return fmt.Errorf("unknown logging backend %q", c.Backend)
	}
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a zerolog Logger for the given component using defaults
// derived from APP_ENV.
func New(component string) Logger {
	var cfg Config
	cfg.SetDefaults()
	return NewWithConfig(cfg, component, os.Stdout)
}

// NewWithConfig builds the logger selected by cfg writing to w.
func NewWithConfig(cfg Config, component string, w io.Writer) Logger {
	cfg.SetDefaults()
	if cfg.Backend == "logrus" {
		return NewLogrusLogger(cfg, component, w)
	}
	return NewZerologLogger(cfg, component, w)
}
