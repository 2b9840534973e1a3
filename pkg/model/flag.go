package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
)

// ConstrainedValue is one candidate value of a flag, optionally restricted to
// a single application id. A candidate without a payload never matches.
type ConstrainedValue struct {
	AppID string
	Value Value
}

// Matches reports whether the candidate applies to appID. An empty filter
// matches every application, including the empty app id.
func (c ConstrainedValue) Matches(appID string) bool {
	if !c.Value.IsSet() {
		return false
	}
	return c.AppID == "" || c.AppID == appID
}

type wireCandidate struct {
	AppID       string       `json:"appId,omitempty"`
	BoolValue   *bool        `json:"boolValue,omitempty"`
	IntValue    *json.Number `json:"intValue,omitempty"`
	FloatValue  *float64     `json:"floatValue,omitempty"`
	StringValue *string      `json:"stringValue,omitempty"`
	BytesValue  *[]byte      `json:"bytesValue,omitempty"`
}

// UnmarshalJSON reads a candidate such as {"appId": "a", "stringValue": "v"}.
// intValue may be a decimal string or any JSON number with an integral value,
// so 3, 3.0 and 3e0 all read as 3. When more than one payload is present the
// first one in the order bool, int, float, string, bytes is kept; the schema
// rejects such documents before they get here.
func (c *ConstrainedValue) UnmarshalJSON(data []byte) error {
	var w wireCandidate
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %s", ErrParse, err)
	}

	out := ConstrainedValue{AppID: w.AppID}
	switch {
	case w.BoolValue != nil:
		out.Value = BoolValue(*w.BoolValue)
	case w.IntValue != nil:
		i, err := parseInt(*w.IntValue)
		if err != nil {
			return fmt.Errorf("%w: intValue %q: %s", ErrParse, w.IntValue.String(), err)
		}
		out.Value = IntValue(i)
	case w.FloatValue != nil:
		out.Value = FloatValue(*w.FloatValue)
	case w.StringValue != nil:
		out.Value = StringValue(*w.StringValue)
	case w.BytesValue != nil:
		out.Value = BytesValue(*w.BytesValue)
	}
	*c = out
	return nil
}

func parseInt(n json.Number) (int64, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, nil
	}
	f, _, err := big.ParseFloat(n.String(), 10, 256, big.ToNearestEven)
	if err != nil {
		return 0, err
	}
	if !f.IsInt() {
		return 0, errors.New("not an integer")
	}
	i, acc := f.Int64()
	if acc != big.Exact {
		return 0, errors.New("out of int64 range")
	}
	return i, nil
}

func (c ConstrainedValue) MarshalJSON() ([]byte, error) {
	w := wireCandidate{AppID: c.AppID}
	switch c.Value.Type() {
	case BoolType:
		b := c.Value.MustBool()
		w.BoolValue = &b
	case IntType:
		n := json.Number(strconv.FormatInt(c.Value.MustInt(), 10))
		w.IntValue = &n
	case FloatType:
		f := c.Value.MustFloat()
		w.FloatValue = &f
	case StringType:
		s := c.Value.MustString()
		w.StringValue = &s
	case BytesType:
		raw := c.Value.MustBytes()
		w.BytesValue = &raw
	}
	return json.Marshal(w)
}

// FlagDefinition is the ordered candidate list of a flag. Order matters: the
// first matching candidate wins.
type FlagDefinition []ConstrainedValue

// FlagTable maps flag names to their definitions. A table is treated as
// immutable once built.
type FlagTable map[string]FlagDefinition

// Keys returns the flag names in sorted order.
func (t FlagTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that shares no candidate slices with t.
func (t FlagTable) Clone() FlagTable {
	out := make(FlagTable, len(t))
	for k, def := range t {
		out[k] = append(FlagDefinition(nil), def...)
	}
	return out
}

// Document is the on-disk form of a flag table.
type Document struct {
	Flags FlagTable `json:"flags"`
}
