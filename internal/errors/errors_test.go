package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestDecodeError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  DecodeError
		want string
	}{
		{
			name: "with cause",
			err:  DecodeError{Reason: "invalid JSON", Err: io.ErrUnexpectedEOF},
			want: "decode task parameters: invalid JSON: unexpected EOF",
		},
		{
			name: "reason only",
			err:  DecodeError{Reason: "Parameters must be an array"},
			want: "decode task parameters: Parameters must be an array",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArgumentError_Format(t *testing.T) {
	err := Invalid("SleepJitter", 150, "must be between %d and %d", 0, 100)
	want := "invalid argument SleepJitter=150: must be between 0 and 100"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	missing := Invalid("Assembly", nil, "parameter is required")
	want = "invalid argument Assembly: parameter is required"
	if got := missing.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContractError_Format(t *testing.T) {
	err := &ContractError{Problems: []string{`missing export "invoke"`, `missing export "memory"`}}
	want := `module does not implement the required capability: missing export "invoke"; missing export "memory"`
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolutionError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("no such process")
	err := &ResolutionError{Resource: "process", ID: "4242", Err: inner}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
	if want := "resolve process 4242: no such process"; err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestLoadError_Unwrap(t *testing.T) {
	err := Load("compile", io.ErrUnexpectedEOF)
	if !Is(err, io.ErrUnexpectedEOF) {
		t.Error("should unwrap to inner error")
	}
	if !Is(err, ErrLoadFailure) {
		t.Error("should match ErrLoadFailure")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "jitter",
				Value:   120,
				Message: "out of range 0-100",
				Hint:    "jitter is a percentage of the sleep interval",
			},
			want: "config: --jitter=120: out of range 0-100\n  hint: jitter is a percentage of the sleep interval",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "id",
				Message: "agent id is required",
			},
			want: "config: --id: agent id is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"decode", &DecodeError{Reason: "x"}, "decode"},
		{"unknown", &UnknownCommandError{Command: "x"}, "unknown_command"},
		{"argument", Invalid("x", nil, "bad"), "invalid_argument"},
		{"resolution", &ResolutionError{Resource: "process", ID: "1", Err: io.EOF}, "resolution"},
		{"contract", &ContractError{Problems: []string{"x"}}, "contract_violation"},
		{"load", Load("decode", io.EOF), "load_failure"},
		{"panic", &PanicError{Command: "x", Value: "boom"}, "panic"},
		{"wrapped", fmt.Errorf("outer: %w", Load("read", io.EOF)), "load_failure"},
		{"plain", fmt.Errorf("boom"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReExports(t *testing.T) {
	base := New("base")
	wrapped := fmt.Errorf("wrap: %w", base)

	if !Is(wrapped, base) {
		t.Error("Is should find base error")
	}
	if Unwrap(wrapped) != base {
		t.Error("Unwrap should return base error")
	}

	var ue *UnknownCommandError
	if !As(fmt.Errorf("x: %w", &UnknownCommandError{Command: "Foo"}), &ue) {
		t.Fatal("As should find UnknownCommandError")
	}
	if ue.Command != "Foo" {
		t.Errorf("Command = %q, want Foo", ue.Command)
	}

	joined := Join(base, ErrNotFound)
	if !Is(joined, ErrNotFound) {
		t.Error("joined error should contain ErrNotFound")
	}
}
