// Package config defines the agent profile: everything fixed at
// process start, from the agent id to the initial sleep timing and
// toggles that seed the runtime configuration store.
package config

import (
	"fmt"
	"time"

	"drone/internal/errors"
	"drone/internal/settings"
)

// Config holds every start-up tuneable for one agent process.  The yaml
// tags name the keys of a profile file.
type Config struct {
	// ── Identity ─────────────────────────────────────────────────────
	AgentID string `yaml:"agent_id"` // empty → random UUID

	// ── Initial runtime settings ─────────────────────────────────────
	SleepInterval   int  `yaml:"sleep_interval"` // seconds
	SleepJitter     int  `yaml:"sleep_jitter"`   // percent
	ParentProcessID int  `yaml:"ppid"`           // 0 → unset
	BlockDLLs       bool `yaml:"block_dlls"`
	DisableAMSI     bool `yaml:"disable_amsi"`
	DisableETW      bool `yaml:"disable_etw"`

	// ── Tasks and modules ────────────────────────────────────────────
	TaskSource    string        `yaml:"tasks"` // file path, or "-" for stdin
	Follow        bool          `yaml:"follow"`
	Workers       int           `yaml:"workers"`
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`
	Modules       []string      `yaml:"modules"` // module files loaded at start

	// ── Output ───────────────────────────────────────────────────────
	Verbose   int    `yaml:"verbose"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"` // "text" or "json"
	Metrics   bool   `yaml:"metrics"`    // print counters on exit
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		SleepInterval: DefaultSleepInterval,
		SleepJitter:   DefaultSleepJitter,
		TaskSource:    DefaultTaskSource,
		Workers:       DefaultWorkers,
		InvokeTimeout: DefaultInvokeTimeout,
		LogFormat:     DefaultLogFormat,
	}
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the profile is internally consistent.  The
// first problem found is returned as a *errors.ConfigError.
func (c *Config) Validate() error {
	switch {
	case c.SleepInterval < 0:
		return &errors.ConfigError{Field: "sleep", Value: c.SleepInterval,
			Message: "sleep interval cannot be negative"}
	case c.SleepJitter < 0 || c.SleepJitter > 100:
		return &errors.ConfigError{Field: "jitter", Value: c.SleepJitter,
			Message: "jitter must be between 0 and 100",
			Hint:    "jitter is a percentage of the sleep interval"}
	case c.ParentProcessID < 0:
		return &errors.ConfigError{Field: "ppid", Value: c.ParentProcessID,
			Message: "process id cannot be negative"}
	case c.Workers < 1:
		return &errors.ConfigError{Field: "workers", Value: c.Workers,
			Message: "at least one worker is required"}
	case c.InvokeTimeout <= 0:
		return &errors.ConfigError{Field: "invoke-timeout", Value: c.InvokeTimeout,
			Message: "timeout must be positive",
			Hint:    "use a Go duration such as 30s or 2m"}
	case c.LogFormat != "text" && c.LogFormat != "json":
		return &errors.ConfigError{Field: "log-format", Value: c.LogFormat,
			Message: "unknown log format",
			Hint:    `use "text" or "json"`}
	case c.Follow && c.TaskSource == "-":
		return &errors.ConfigError{Field: "follow", Value: true,
			Message: "follow mode needs a task file",
			Hint:    "pass --tasks <file> together with --follow"}
	}
	return nil
}

// ── Store seeding ────────────────────────────────────────────────────

// ApplyTo writes the initial runtime settings into store.  A zero
// ParentProcessID leaves that entry unset.
func (c *Config) ApplyTo(store *settings.Store) error {
	type seed struct {
		key   settings.Key
		value interface{}
	}
	seeds := []seed{
		{settings.SleepInterval, c.SleepInterval},
		{settings.SleepJitter, c.SleepJitter},
		{settings.BlockDLLs, c.BlockDLLs},
		{settings.DisableAMSI, c.DisableAMSI},
		{settings.DisableETW, c.DisableETW},
	}
	if c.ParentProcessID > 0 {
		seeds = append(seeds, seed{settings.ParentProcessID, c.ParentProcessID})
	}
	for _, s := range seeds {
		if err := store.Set(s.key, s.value); err != nil {
			return fmt.Errorf("seed %s: %w", s.key, err)
		}
	}
	return nil
}
