// Package emailstore persists computed schedules in SQLite or rotating JSONL
// files.
package emailstore

import (
	"fmt"

	"github.com/kilianp07/enrollmail/core/store"
)

// Config defines settings for schedule storage and rotation.
type Config struct {
	// Backend selects the store type: "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Path == "" {
		if c.Backend == "jsonl" {
			c.Path = "schedules.jsonl"
		} else {
			c.Path = "schedules.db"
		}
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Backend != "jsonl" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown output backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// Open creates the store selected by cfg.
func Open(cfg Config) (store.EmailStore, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	default:
		return NewSQLiteStore(cfg.Path)
	}
}
