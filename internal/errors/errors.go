// Package errors provides the error taxonomy used by the agent core.
//
// Every failure raised while handling a task is one of the structured
// types below.  The dispatcher turns them into a single error report
// for the controller, so the Error() text is what an operator reads.
// Each type also matches a sentinel through errors.Is, which lets
// callers classify a failure without caring about its fields.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrDecode            = errors.New("malformed task payload")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("resource not found")
	ErrContractViolation = errors.New("capability contract violation")
	ErrLoadFailure       = errors.New("module load failure")
	ErrHandlerPanic      = errors.New("command handler panicked")
)

// ── Structured error types ───────────────────────────────────────────

// DecodeError reports a task payload the parameter decoder could not
// parse.
type DecodeError struct {
	Reason string // what was wrong with the payload
	Err    error  // underlying parser error (optional)
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode task parameters: %s: %v", e.Reason, e.Err)
	}
	return "decode task parameters: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// UnknownCommandError reports a command name with no registered handler.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Command)
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }

// ArgumentError reports a parameter or setting with the wrong shape.
type ArgumentError struct {
	Name    string      // parameter or setting name
	Value   interface{} // offending value (nil if missing)
	Message string      // human-readable explanation
}

func (e *ArgumentError) Error() string {
	msg := "invalid argument " + e.Name
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	return msg + ": " + e.Message
}

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// ResolutionError reports an OS resource (process, file) that could not
// be resolved.
type ResolutionError struct {
	Resource string // "process", "file"
	ID       string // identifier that was looked up
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %s: %v", e.Resource, e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrNotFound }

// ContractError reports loaded code that does not expose the required
// capability shape.  Problems lists every violation found, not just the
// first one.
type ContractError struct {
	Module   string
	Problems []string
}

func (e *ContractError) Error() string {
	name := e.Module
	if name == "" {
		name = "module"
	}
	return fmt.Sprintf("%s does not implement the required capability: %s",
		name, strings.Join(e.Problems, "; "))
}

func (e *ContractError) Is(target error) bool { return target == ErrContractViolation }

// LoadError reports a failure to get capability code into the process.
type LoadError struct {
	Stage string // "decode", "compile", "instantiate", "describe", "read"
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module: %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoadFailure }

// PanicError carries a panic recovered from a command handler.
type PanicError struct {
	Command string
	Value   interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("command %s panicked: %v", e.Command, e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrHandlerPanic }

// ConfigError represents an invalid agent profile value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Invalid creates an ArgumentError.
func Invalid(name string, value interface{}, format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Name: name, Value: value, Message: fmt.Sprintf(format, args...)}
}

// Load wraps err as a LoadError for the given stage.
func Load(stage string, err error) *LoadError {
	return &LoadError{Stage: stage, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// Kind returns a short, stable name for the class of err, or "" when
// err is nil.  Unclassified errors report "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "resolution"
	case errors.Is(err, ErrContractViolation):
		return "contract_violation"
	case errors.Is(err, ErrLoadFailure):
		return "load_failure"
	case errors.Is(err, ErrHandlerPanic):
		return "panic"
	default:
		return "internal"
	}
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
