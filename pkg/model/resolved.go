package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ResolvedFlags is the effective value of every flag that matched an
// application id. It is immutable and safe to share between goroutines.
type ResolvedFlags struct {
	values map[string]Value
}

// NewResolvedFlags copies values into a new snapshot. Unset values are dropped.
func NewResolvedFlags(values map[string]Value) ResolvedFlags {
	out := make(map[string]Value, len(values))
	for k, v := range values {
		if v.IsSet() {
			out[k] = v
		}
	}
	return ResolvedFlags{values: out}
}

func (r ResolvedFlags) Len() int { return len(r.values) }

// Get returns the value of a flag and whether the flag resolved at all.
func (r ResolvedFlags) Get(flagKey string) (Value, bool) {
	v, ok := r.values[flagKey]
	return v, ok
}

func (r ResolvedFlags) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r ResolvedFlags) lookup(flagKey string) (Value, error) {
	v, ok := r.values[flagKey]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrFlagNotFound, flagKey)
	}
	return v, nil
}

func (r ResolvedFlags) Bool(flagKey string) (bool, error) {
	v, err := r.lookup(flagKey)
	if err != nil {
		return false, err
	}
	return v.GetBool()
}

func (r ResolvedFlags) Int(flagKey string) (int64, error) {
	v, err := r.lookup(flagKey)
	if err != nil {
		return 0, err
	}
	return v.GetInt()
}

func (r ResolvedFlags) Float(flagKey string) (float64, error) {
	v, err := r.lookup(flagKey)
	if err != nil {
		return 0, err
	}
	return v.GetFloat()
}

func (r ResolvedFlags) String(flagKey string) (string, error) {
	v, err := r.lookup(flagKey)
	if err != nil {
		return "", err
	}
	return v.GetString()
}

func (r ResolvedFlags) Bytes(flagKey string) ([]byte, error) {
	v, err := r.lookup(flagKey)
	if err != nil {
		return nil, err
	}
	return v.GetBytes()
}

func (r ResolvedFlags) Equal(o ResolvedFlags) bool {
	if len(r.values) != len(o.values) {
		return false
	}
	for k, v := range r.values {
		ov, ok := o.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (r ResolvedFlags) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.values)
}

func (r *ResolvedFlags) UnmarshalJSON(data []byte) error {
	values := map[string]Value{}
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*r = NewResolvedFlags(values)
	return nil
}
