package contactstore

import (
	"fmt"
	"time"

	"github.com/kilianp07/enrollmail/core/logger"
	"github.com/kilianp07/enrollmail/core/store"
	"github.com/kilianp07/enrollmail/infra/auth"
)

// Config selects and configures the contact source.
type Config struct {
	// Backend is "http" for the remote SQL store or "file" for a local
	// JSON/YAML contacts file.
	Backend string `json:"backend"`
	// URL is the base URL of the remote database.
	URL string `json:"url"`
	// Token authenticates against the remote database. It is usually
	// injected from the environment rather than the config file.
	Token string `json:"token" env:"ENROLLMAIL_STORE_TOKEN"`
	// OAuth replaces the static token with client-credentials tokens when
	// its auth_url is set.
	OAuth auth.Conf `json:"oauth"`
	// File is the contacts file used by the file backend.
	File       string        `json:"file"`
	Table      string        `json:"table"`
	Columns    Columns       `json:"columns"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries uint64        `json:"max_retries"`
}

// Columns maps contact fields to column names.
type Columns struct {
	ID            string `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	State         string `json:"state"`
	BirthDate     string `json:"birth_date"`
	EffectiveDate string `json:"effective_date"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "http"
	}
	if c.Table == "" {
		c.Table = "contacts"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	col := &c.Columns
	for _, f := range []struct {
		field *string
		def   string
	}{
		{&col.ID, "id"},
		{&col.FirstName, "first_name"},
		{&col.LastName, "last_name"},
		{&col.Email, "email"},
		{&col.State, "current_state"},
		{&col.BirthDate, "birth_date"},
		{&col.EffectiveDate, "effective_date"},
	} {
		if *f.field == "" {
			*f.field = f.def
		}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "http":
		if c.URL == "" {
			return fmt.Errorf("store url is required for the http backend")
		}
	case "file":
		if c.File == "" {
			return fmt.Errorf("store file is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown store backend %s", c.Backend)
	}
	return nil
}

// Open builds the contact store selected by cfg.
func Open(cfg Config, log logger.Logger) (store.ContactStore, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == "file" {
		return LoadFile(cfg.File)
	}
	st := NewHTTPStore(cfg, nil, log)
	if cfg.OAuth.Enabled() {
		st.WithAuth(auth.NewClientCred(cfg.OAuth))
	}
	return st, nil
}
