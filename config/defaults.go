package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, profile file parsing, and environment variable
// loading.

const (
	// DefaultSleepInterval is the check-in interval in seconds.  It also
	// paces polling of a followed task file.
	DefaultSleepInterval = 60

	// DefaultSleepJitter is the ± percentage applied to the interval.
	DefaultSleepJitter = 10

	// DefaultWorkers limits how many tasks run at once.
	DefaultWorkers = 4

	// DefaultInvokeTimeout bounds one call into a loaded module.
	DefaultInvokeTimeout = 30 * time.Second

	// DefaultTaskSource reads tasks from standard input.
	DefaultTaskSource = "-"

	// DefaultLogFormat is the human-readable "[INF] message" format.
	DefaultLogFormat = "text"

	// DefaultLogFileMaxSizeMB is the size at which a log file rotates.
	DefaultLogFileMaxSizeMB = 10

	// EnvPrefix prefixes every environment variable the agent reads.
	EnvPrefix = "DRONE_"
)
