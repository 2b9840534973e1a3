package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

type ValueType int32

const (
	UnsetType ValueType = iota
	BoolType
	IntType
	FloatType
	StringType
	BytesType
)

func (t ValueType) String() string {
	switch t {
	case BoolType:
		return "BOOL"
	case IntType:
		return "INT"
	case FloatType:
		return "FLOAT"
	case StringType:
		return "STRING"
	case BytesType:
		return "BYTES"
	default:
		return "UNSET"
	}
}

// ParseValueType accepts the names returned by ValueType.String as well as the
// short lower case forms used in HTTP paths (bool, int, float, string, bytes).
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "BOOL", "bool", "boolean":
		return BoolType, nil
	case "INT", "int", "integer":
		return IntType, nil
	case "FLOAT", "float", "number":
		return FloatType, nil
	case "STRING", "string":
		return StringType, nil
	case "BYTES", "bytes":
		return BytesType, nil
	}
	return UnsetType, fmt.Errorf("%w: unknown value type %q", ErrParse, s)
}

// Value is a tagged variant holding exactly one of bool, int64, float64,
// string or bytes. The zero Value is unset.
//
// The Get accessors return ErrTypeMismatch when called for a type other than
// the stored one; the Must variants panic instead.
type Value struct {
	kind ValueType
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
}

func BoolValue(v bool) Value { return Value{kind: BoolType, b: v} }
func IntValue(v int64) Value { return Value{kind: IntType, i: v} }
func FloatValue(v float64) Value { return Value{kind: FloatType, f: v} }
func StringValue(v string) Value { return Value{kind: StringType, s: v} }
func BytesValue(v []byte) Value { return Value{kind: BytesType, raw: append([]byte{}, v...)} }
func (v Value) Type() ValueType { return v.kind }
func (v Value) IsSet() bool { return v.kind != UnsetType }

func (v Value) typeError(want ValueType) error {
	return fmt.Errorf("%w: value is %s, not %s", ErrTypeMismatch, v.kind, want)
}

func (v Value) GetBool() (bool, error) {
	if v.kind != BoolType {
		return false, v.typeError(BoolType)
	}
	return v.b, nil
}

func (v Value) GetInt() (int64, error) {
	if v.kind != IntType {
		return 0, v.typeError(IntType)
	}
	return v.i, nil
}

func (v Value) GetFloat() (float64, error) {
	if v.kind != FloatType {
		return 0, v.typeError(FloatType)
	}
	return v.f, nil
}

func (v Value) GetString() (string, error) {
	if v.kind != StringType {
		return "", v.typeError(StringType)
	}
	return v.s, nil
}

// GetBytes returns a copy of the bytes payload.
func (v Value) GetBytes() ([]byte, error) {
	if v.kind != BytesType {
		return nil, v.typeError(BytesType)
	}
	return append([]byte{}, v.raw...), nil
}

func (v Value) MustBool() bool { return must(v.GetBool()) }
func (v Value) MustInt() int64 { return must(v.GetInt()) }
func (v Value) MustFloat() float64 { return must(v.GetFloat()) }
func (v Value) MustString() string { return must(v.GetString()) }
func (v Value) MustBytes() []byte { return must(v.GetBytes()) }

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Interface returns the payload as a plain Go value, nil when unset.
func (v Value) Interface() any {
	switch v.kind {
	case BoolType:
		return v.b
	case IntType:
		return v.i
	case FloatType:
		return v.f
	case StringType:
		return v.s
	case BytesType:
		return append([]byte{}, v.raw...)
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case BoolType:
		return fmt.Sprintf("BOOL(%t)", v.b)
	case IntType:
		return fmt.Sprintf("INT(%d)", v.i)
	case FloatType:
		return fmt.Sprintf("FLOAT(%s)", strconv.FormatFloat(v.f, 'g', -1, 64))
	case StringType:
		return fmt.Sprintf("STRING(%q)", v.s)
	case BytesType:
		return fmt.Sprintf("BYTES(%s)", base64.StdEncoding.EncodeToString(v.raw))
	}
	return "UNSET"
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case BoolType:
		return v.b == o.b
	case IntType:
		return v.i == o.i
	case FloatType:
		return v.f == o.f
	case StringType:
		return v.s == o.s
	case BytesType:
		return bytes.Equal(v.raw, o.raw)
	}
	return true
}

type taggedValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// MarshalJSON encodes the value as {"type": "STRING", "value": "v1"}. Int
// values are written as decimal strings so they survive float64 decoders.
func (v Value) MarshalJSON() ([]byte, error) {
	out := taggedValue{Type: v.kind.String()}
	switch v.kind {
	case IntType:
		out.Value = strconv.FormatInt(v.i, 10)
	case BytesType:
		out.Value = base64.StdEncoding.EncodeToString(v.raw)
	default:
		out.Value = v.Interface()
	}
	return json.Marshal(out)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %s", ErrParse, err)
	}
	if in.Type == "UNSET" || in.Type == "" {
		*v = Value{}
		return nil
	}
	t, err := ParseValueType(in.Type)
	if err != nil {
		return err
	}
	switch t {
	case BoolType:
		var b bool
		err = json.Unmarshal(in.Value, &b)
		*v = BoolValue(b)
	case IntType:
		var n json.Number
		if err = json.Unmarshal(in.Value, &n); err == nil {
			var i int64
			i, err = strconv.ParseInt(n.String(), 10, 64)
			*v = IntValue(i)
		}
	case FloatType:
		var f float64
		err = json.Unmarshal(in.Value, &f)
		*v = FloatValue(f)
	case StringType:
		var s string
		err = json.Unmarshal(in.Value, &s)
		*v = StringValue(s)
	case BytesType:
		var raw []byte
		err = json.Unmarshal(in.Value, &raw)
		*v = BytesValue(raw)
	}
	if err != nil {
		return fmt.Errorf("%w: %s value: %s", ErrParse, t, err)
	}
	return nil
}
