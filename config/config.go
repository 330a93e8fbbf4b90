package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/kilianp07/enrollmail/core/metrics"
	"github.com/kilianp07/enrollmail/core/scheduler"
	"github.com/kilianp07/enrollmail/infra/contactstore"
	"github.com/kilianp07/enrollmail/infra/emailstore"
	"github.com/kilianp07/enrollmail/infra/logger"
	"github.com/kilianp07/enrollmail/infra/monitoring"
	"github.com/kilianp07/enrollmail/infra/mqtt"
)

// EnvFile is the dotenv file preloaded by Load when present.
var EnvFile = ".env"

type Config struct {
	Logging   logger.Config       `json:"logging"`
	Rules     RulesConfig         `json:"rules"`
	Scheduler scheduler.Config    `json:"scheduler"`
	Store     contactstore.Config `json:"store"`
	Output    emailstore.Config   `json:"output"`
	MQTT      mqtt.Config         `json:"mqtt"`
	Metrics   metrics.Config      `json:"metrics"`
	API       APIConfig           `json:"api"`
	Sentry    monitoring.Config   `json:"sentry"`
}

// RulesConfig points at an optional state rule table overriding the defaults.
type RulesConfig struct {
	Path string `json:"path"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// Override adjusts a loaded configuration before defaults and validation.
type Override func(*Config)

// Load reads the configuration file at path, applies K_ prefixed environment
// overrides, secrets and the given overrides, then fills defaults and
// validates every section. An empty path loads defaults and environment only.
func Load(path string, overrides ...Override) (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", EnvFile, err)
	}

	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(kenv.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section's defaults.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Store.SetDefaults()
	c.Output.SetDefaults()
	c.MQTT.SetDefaults()
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if _, err := cron.ParseStandard(c.Scheduler.CronSpec); err != nil {
		return fmt.Errorf("scheduler: invalid cron spec %q: %w", c.Scheduler.CronSpec, err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
