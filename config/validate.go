package config

import "github.com/apiprobe/apiprobe/errors"

// Validate checks configuration invariants that defaults cannot repair
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	// Workers: 0 falls back to the default of 1, negative is invalid
	if c.Execution.Workers < 0 {
		return errors.Newf("execution.workers must be >= 0, got %d", c.Execution.Workers)
	}

	// Timeout: 0 = no wall-clock kill, negative = invalid
	if c.Execution.TimeoutSeconds < 0 {
		return errors.Newf("execution.timeout_seconds must be >= 0, got %d", c.Execution.TimeoutSeconds)
	}

	if c.Execution.Retries < 0 {
		return errors.Newf("execution.retries must be >= 0, got %d", c.Execution.Retries)
	}

	// Retention: 0 = keep forever, negative = invalid
	if c.Execution.HistoryRetentionDays < 0 {
		return errors.Newf("execution.history_retention_days must be >= 0, got %d", c.Execution.HistoryRetentionDays)
	}

	return nil
}
