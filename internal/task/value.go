// Package task decodes task payloads into named, typed parameters.
//
// A payload is a JSON document of the form
//
//	{"Parameters": [{"Name": "Interval", "Value": 30}, ...]}
//
// Each Value is a closed variant: a string, a boolean, an integer, a
// binary blob ({"base64": "..."}) or absent.  Handlers switch on
// Value.Kind and treat anything unexpected as an invalid argument.
package task

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindBool
	KindInt
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is one decoded parameter value.  The zero Value is absent.
type Value struct {
	kind Kind
	str  string
	b    bool
	n    int64
	blob []byte
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue returns an integer Value.
func IntValue(n int64) Value { return Value{kind: KindInt, n: n} }

// BytesValue returns a binary Value.
func BytesValue(b []byte) Value { return Value{kind: KindBytes, blob: b} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the parameter was not supplied.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Text returns the string variant, or "" for other kinds.
func (v Value) Text() string { return v.str }

// Bool returns the boolean variant, or false for other kinds.
func (v Value) Bool() bool { return v.b }

// Int returns the integer variant, or 0 for other kinds.
func (v Value) Int() int64 { return v.n }

// Bytes returns the binary variant, or nil for other kinds.
func (v Value) Bytes() []byte { return v.blob }

// Interface returns the held value as a plain Go value (nil if absent).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindInt:
		return v.n
	case KindBytes:
		return v.blob
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "<absent>"
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.blob))
	default:
		return fmt.Sprint(v.Interface())
	}
}

// ── Parameters ───────────────────────────────────────────────────────

// Parameter is one named task parameter.
type Parameter struct {
	Name  string
	Value Value
}

// Param is a shorthand constructor for a Parameter.
func Param(name string, v Value) Parameter { return Parameter{Name: name, Value: v} }

// Parameters is the ordered parameter list of one task.
type Parameters []Parameter

// Lookup returns the value of the first parameter whose name matches
// name case-insensitively, or an absent Value.
func (ps Parameters) Lookup(name string) Value {
	for _, p := range ps {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return Value{}
}
