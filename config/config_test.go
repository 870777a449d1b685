package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drone/internal/errors"
	"drone/internal/settings"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantSub string
	}{
		{"negative sleep", func(c *Config) { c.SleepInterval = -1 }, "sleep", "cannot be negative"},
		{"jitter too high", func(c *Config) { c.SleepJitter = 101 }, "jitter", "hint:"},
		{"negative ppid", func(c *Config) { c.ParentProcessID = -5 }, "ppid", "cannot be negative"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers", "at least one worker"},
		{"zero timeout", func(c *Config) { c.InvokeTimeout = 0 }, "invoke-timeout", "hint:"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log-format", `"text" or "json"`},
		{"follow stdin", func(c *Config) { c.Follow = true }, "follow", "--tasks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *errors.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error type = %T, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestApplyTo(t *testing.T) {
	cfg := Default()
	cfg.SleepInterval = 5
	cfg.SleepJitter = 20
	cfg.DisableETW = true

	store := settings.New()
	if err := cfg.ApplyTo(store); err != nil {
		t.Fatal(err)
	}
	if got := store.Int(settings.SleepInterval); got != 5 {
		t.Errorf("SleepInterval = %d, want 5", got)
	}
	if got := store.Int(settings.SleepJitter); got != 20 {
		t.Errorf("SleepJitter = %d, want 20", got)
	}
	if !store.Bool(settings.DisableETW) || store.Bool(settings.DisableAMSI) {
		t.Error("toggles not seeded as configured")
	}
	if _, ok := store.Lookup(settings.ParentProcessID); ok {
		t.Error("zero ppid should leave the entry unset")
	}

	cfg.ParentProcessID = 4242
	if err := cfg.ApplyTo(store); err != nil {
		t.Fatal(err)
	}
	if got := store.Int(settings.ParentProcessID); got != 4242 {
		t.Errorf("ParentProcessId = %d, want 4242", got)
	}
}

func TestApplyTo_RejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.SleepJitter = 500
	if err := cfg.ApplyTo(settings.New()); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("err = %v, want invalid argument", err)
	}
}

// ── Profile file ─────────────────────────────────────────────────────

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeProfile(t, `
agent_id: ops-7
sleep_interval: 300
sleep_jitter: 25
disable_amsi: true
workers: 2
invoke_timeout: 45s
modules:
  - /opt/mods/recon.wasm
  - /opt/mods/files.wasm
log_format: json
`)
	cfg := Default()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.AgentID != "ops-7" || cfg.SleepInterval != 300 || cfg.SleepJitter != 25 {
		t.Errorf("identity/sleep not loaded: %+v", cfg)
	}
	if !cfg.DisableAMSI || cfg.BlockDLLs {
		t.Errorf("toggles = amsi:%v dlls:%v", cfg.DisableAMSI, cfg.BlockDLLs)
	}
	if cfg.Workers != 2 || cfg.InvokeTimeout != 45*time.Second {
		t.Errorf("workers=%d timeout=%s", cfg.Workers, cfg.InvokeTimeout)
	}
	if len(cfg.Modules) != 2 || cfg.Modules[1] != "/opt/mods/files.wasm" {
		t.Errorf("Modules = %v", cfg.Modules)
	}
	if cfg.TaskSource != DefaultTaskSource {
		t.Errorf("TaskSource = %q, absent keys must keep defaults", cfg.TaskSource)
	}
}

func TestLoadFile_Empty(t *testing.T) {
	cfg := Default()
	if err := LoadFile(writeProfile(t, ""), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.SleepInterval != DefaultSleepInterval {
		t.Error("empty profile changed defaults")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), Default()); err == nil {
		t.Error("missing file: expected error")
	}
	if err := LoadFile(writeProfile(t, "sleep_intervall: 5\n"), Default()); err == nil {
		t.Error("unknown key: expected error")
	}
	if err := LoadFile(writeProfile(t, "workers: many\n"), Default()); err == nil {
		t.Error("wrong type: expected error")
	}
}

// ── Environment ──────────────────────────────────────────────────────

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DRONE_ID", "env-agent")
	t.Setenv("DRONE_SLEEP", "15")
	t.Setenv("DRONE_JITTER", "0")
	t.Setenv("DRONE_TASKS", "/tmp/tasks.jsonl")
	t.Setenv("DRONE_INVOKE_TIMEOUT", "2m")
	t.Setenv("DRONE_MODULES", "a.wasm"+string(os.PathListSeparator)+" b.wasm ")
	t.Setenv("DRONE_LOG_FORMAT", "JSON")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.AgentID != "env-agent" {
		t.Errorf("AgentID = %q", cfg.AgentID)
	}
	if cfg.SleepInterval != 15 || cfg.SleepJitter != 0 {
		t.Errorf("sleep = %d/%d, want 15/0", cfg.SleepInterval, cfg.SleepJitter)
	}
	if cfg.TaskSource != "/tmp/tasks.jsonl" {
		t.Errorf("TaskSource = %q", cfg.TaskSource)
	}
	if cfg.InvokeTimeout != 2*time.Minute {
		t.Errorf("InvokeTimeout = %s", cfg.InvokeTimeout)
	}
	if len(cfg.Modules) != 2 || cfg.Modules[0] != "a.wasm" || cfg.Modules[1] != "b.wasm" {
		t.Errorf("Modules = %q", cfg.Modules)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		key    string
		values []string
		get    func(*Config) bool
	}{
		{"DRONE_BLOCK_DLLS", []string{"1", "true", "yes", "TRUE", "Yes"}, func(c *Config) bool { return c.BlockDLLs }},
		{"DRONE_DISABLE_AMSI", []string{"1", "true"}, func(c *Config) bool { return c.DisableAMSI }},
		{"DRONE_DISABLE_ETW", []string{"true"}, func(c *Config) bool { return c.DisableETW }},
		{"DRONE_FOLLOW", []string{"1"}, func(c *Config) bool { return c.Follow }},
		{"DRONE_METRICS", []string{"yes"}, func(c *Config) bool { return c.Metrics }},
	}

	for _, tt := range tests {
		for _, v := range tt.values {
			t.Run(tt.key+"="+v, func(t *testing.T) {
				t.Setenv(tt.key, v)
				cfg := &Config{}
				LoadFromEnv(cfg)
				if !tt.get(cfg) {
					t.Errorf("%s=%s not applied", tt.key, v)
				}
			})
		}
	}
}

func TestLoadFromEnv_InvalidIgnored(t *testing.T) {
	t.Setenv("DRONE_WORKERS", "lots")
	t.Setenv("DRONE_INVOKE_TIMEOUT", "soon")
	t.Setenv("DRONE_BLOCK_DLLS", "nope")

	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Workers != DefaultWorkers || cfg.InvokeTimeout != DefaultInvokeTimeout || cfg.BlockDLLs {
		t.Errorf("invalid env values should be ignored: %+v", cfg)
	}
}
