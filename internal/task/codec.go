package task

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"drone/internal/errors"
)

// Decode parses a task payload into its parameters.  An empty payload
// means no parameters were supplied.  Malformed payloads yield a
// *errors.DecodeError.
func Decode(payload []byte) (Parameters, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(payload) {
		return nil, &errors.DecodeError{Reason: "payload is not valid JSON"}
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, &errors.DecodeError{Reason: "payload must be a JSON object"}
	}

	list := field(root, "Parameters")
	switch {
	case !list.Exists() || list.Type == gjson.Null:
		return nil, nil
	case !list.IsArray():
		return nil, &errors.DecodeError{Reason: "Parameters must be an array"}
	}

	var (
		params Parameters
		err    error
	)
	list.ForEach(func(_, item gjson.Result) bool {
		var p Parameter
		p, err = decodeParameter(item, len(params))
		if err != nil {
			return false
		}
		params = append(params, p)
		return true
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

func decodeParameter(item gjson.Result, index int) (Parameter, error) {
	if !item.IsObject() {
		return Parameter{}, &errors.DecodeError{Reason: "parameter " + strconv.Itoa(index) + " is not an object"}
	}
	name := field(item, "Name")
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return Parameter{}, &errors.DecodeError{Reason: "parameter " + strconv.Itoa(index) + " has no name"}
	}
	v, err := decodeValue(field(item, "Value"))
	if err != nil {
		return Parameter{}, &errors.DecodeError{Reason: "parameter " + name.Str, Err: err}
	}
	return Parameter{Name: name.Str, Value: v}, nil
}

func decodeValue(r gjson.Result) (Value, error) {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return Value{}, nil
	case r.Type == gjson.String:
		return StringValue(r.Str), nil
	case r.Type == gjson.True:
		return BoolValue(true), nil
	case r.Type == gjson.False:
		return BoolValue(false), nil
	case r.Type == gjson.Number:
		n, ok := integral(r)
		if !ok {
			return Value{}, errors.New("number " + r.Raw + " is not an integer")
		}
		return IntValue(n), nil
	case r.IsObject():
		enc := field(r, "base64")
		if enc.Type != gjson.String {
			return Value{}, errors.New(`object values must be {"base64": "..."}`)
		}
		blob, err := base64.StdEncoding.DecodeString(enc.Str)
		if err != nil {
			return Value{}, err
		}
		return BytesValue(blob), nil
	default:
		return Value{}, errors.New("unsupported value " + r.Raw)
	}
}

// integral converts a JSON number to int64 when it has no fractional
// part and fits without loss.
func integral(r gjson.Result) (int64, bool) {
	if !strings.ContainsAny(r.Raw, ".eE") {
		n, err := strconv.ParseInt(r.Raw, 10, 64)
		return n, err == nil
	}
	if r.Num != math.Trunc(r.Num) || math.Abs(r.Num) > 1<<53 {
		return 0, false
	}
	return int64(r.Num), true
}

// field returns the member of obj whose key matches name ignoring case.
func field(obj gjson.Result, name string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(key, value gjson.Result) bool {
		if strings.EqualFold(key.Str, name) {
			out = value
			return false
		}
		return true
	})
	return out
}

// ── Encoding ─────────────────────────────────────────────────────────

// Encode builds a payload carrying params.  Absent values are encoded
// as null.
func Encode(params ...Parameter) ([]byte, error) {
	doc := []byte(`{"Parameters":[]}`)
	for _, p := range params {
		elem, err := encodeParameter(p)
		if err != nil {
			return nil, err
		}
		doc, err = sjson.SetRawBytes(doc, "Parameters.-1", elem)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// MustEncode is like Encode but panics on error.  Meant for tests and
// static payloads.
func MustEncode(params ...Parameter) []byte {
	b, err := Encode(params...)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeParameter(p Parameter) ([]byte, error) {
	elem, err := sjson.SetBytes([]byte(`{}`), "Name", p.Name)
	if err != nil {
		return nil, err
	}
	switch p.Value.Kind() {
	case KindString:
		return sjson.SetBytes(elem, "Value", p.Value.Text())
	case KindBool:
		return sjson.SetBytes(elem, "Value", p.Value.Bool())
	case KindInt:
		return sjson.SetBytes(elem, "Value", p.Value.Int())
	case KindBytes:
		return sjson.SetBytes(elem, "Value.base64", base64.StdEncoding.EncodeToString(p.Value.Bytes()))
	default:
		return sjson.SetRawBytes(elem, "Value", []byte("null"))
	}
}
