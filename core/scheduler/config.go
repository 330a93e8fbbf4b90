package scheduler

import "runtime"

// Config defines scheduler related settings.
type Config struct {
	// Workers bounds the per-contact fan-out of a batch. Zero uses GOMAXPROCS.
	Workers int `json:"workers"`
	// CronSpec triggers the recurring batch run when the service is started.
	CronSpec string `json:"cron_spec"`
	// PageSize is the number of contacts fetched per store page.
	PageSize int `json:"page_size"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.CronSpec == "" {
		c.CronSpec = "0 6 * * *"
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
}
