package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const AllTypesDocument = `{
  "flags": {
    "boolFlag":   [{"boolValue": false}],
    "intFlag":    [{"appId": "app_a", "intValue": "9223372036854775807"}, {"intValue": 3}],
    "floatFlag":  [{"floatValue": 0.25}],
    "stringFlag": [{"appId": "app_b", "stringValue": ""}],
    "bytesFlag":  [{"bytesValue": "AQID"}],
    "emptyFlag":  [{}, {"appId": "app_a"}]
  }
}`

func TestDocument_Unmarshal(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(AllTypesDocument), &doc))

	assert.Equal(t, []string{"boolFlag", "bytesFlag", "emptyFlag", "floatFlag", "intFlag", "stringFlag"}, doc.Flags.Keys())

	assert.False(t, doc.Flags["boolFlag"][0].Value.MustBool())
	assert.Equal(t, int64(9223372036854775807), doc.Flags["intFlag"][0].Value.MustInt())
	assert.Equal(t, "app_a", doc.Flags["intFlag"][0].AppID)
	assert.Equal(t, int64(3), doc.Flags["intFlag"][1].Value.MustInt())
	assert.Equal(t, 0.25, doc.Flags["floatFlag"][0].Value.MustFloat())
	assert.Equal(t, "", doc.Flags["stringFlag"][0].Value.MustString())
	assert.Equal(t, []byte{1, 2, 3}, doc.Flags["bytesFlag"][0].Value.MustBytes())

	for _, c := range doc.Flags["emptyFlag"] {
		assert.False(t, c.Value.IsSet())
	}
}

func TestConstrainedValue_BadInt(t *testing.T) {
	var c ConstrainedValue
	err := json.Unmarshal([]byte(`{"intValue": 1.5}`), &c)
	assert.ErrorIs(t, err, ErrParse)
}

func TestConstrainedValue_IntegralNumbers(t *testing.T) {
	tests := map[string]int64{
		`1`:                      1,
		`1.0`:                    1,
		`1e3`:                    1000,
		`-2.50e1`:                -25,
		`9223372036854775807`:    9223372036854775807,
		`"-9223372036854775808"`: -9223372036854775808,
	}
	for raw, want := range tests {
		var c ConstrainedValue
		require.NoError(t, json.Unmarshal([]byte(`{"intValue": `+raw+`}`), &c), raw)
		assert.Equal(t, want, c.Value.MustInt(), raw)
	}

	for _, raw := range []string{`1.5`, `1e-1`, `1e30`, `9223372036854775808`} {
		var c ConstrainedValue
		err := json.Unmarshal([]byte(`{"intValue": `+raw+`}`), &c)
		assert.ErrorIs(t, err, ErrParse, raw)
	}
}

func TestConstrainedValue_MultiplePayloadsKeepsFirst(t *testing.T) {
	var c ConstrainedValue
	require.NoError(t, json.Unmarshal([]byte(`{"stringValue": "s", "intValue": 4}`), &c))
	assert.Equal(t, IntType, c.Value.Type())
}

func TestConstrainedValue_Matches(t *testing.T) {
	tests := []struct {
		name      string
		candidate ConstrainedValue
		appID     string
		want      bool
	}{
		{"unfiltered", ConstrainedValue{Value: StringValue("v")}, "anything", true},
		{"unfiltered empty app", ConstrainedValue{Value: StringValue("v")}, "", true},
		{"filter equal", ConstrainedValue{AppID: "X", Value: BoolValue(false)}, "X", true},
		{"filter prefix", ConstrainedValue{AppID: "X", Value: BoolValue(true)}, "X1", false},
		{"filter other", ConstrainedValue{AppID: "X", Value: BoolValue(true)}, "Y", false},
		{"empty payload", ConstrainedValue{}, "X", false},
		{"empty payload filtered", ConstrainedValue{AppID: "X"}, "X", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.candidate.Matches(tt.appID))
		})
	}
}

func TestDocument_MarshalRestoresWireFormat(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(AllTypesDocument), &doc))

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var again Document
	require.NoError(t, json.Unmarshal(b, &again))
	require.Len(t, again.Flags, len(doc.Flags))
	for k, def := range doc.Flags {
		require.Len(t, again.Flags[k], len(def))
		for i := range def {
			assert.Equal(t, def[i].AppID, again.Flags[k][i].AppID)
			assert.True(t, def[i].Value.Equal(again.Flags[k][i].Value))
		}
	}
}

func TestFlagTable_Clone(t *testing.T) {
	table := FlagTable{"f1": {{Value: StringValue("a")}}}
	clone := table.Clone()
	clone["f1"][0] = ConstrainedValue{Value: StringValue("b")}
	clone["f2"] = FlagDefinition{}

	assert.Equal(t, "a", table["f1"][0].Value.MustString())
	assert.Len(t, table, 1)
}

func TestResolvedFlags_Accessors(t *testing.T) {
	r := NewResolvedFlags(map[string]Value{
		"s":     StringValue("v1"),
		"unset": {},
	})

	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("unset")
	assert.False(t, ok)

	s, err := r.String("s")
	require.NoError(t, err)
	assert.Equal(t, "v1", s)

	_, err = r.Int("s")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = r.Bool("missing")
	assert.ErrorIs(t, err, ErrFlagNotFound)
	assert.Equal(t, FlagNotFoundErrorCode, ErrorCode(err))
}

func TestResolvedFlags_JSON(t *testing.T) {
	r := NewResolvedFlags(map[string]Value{"f1": StringValue("v1"), "n": IntValue(7)})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"f1":{"type":"STRING","value":"v1"},"n":{"type":"INT","value":"7"}}`, string(b))

	var out ResolvedFlags
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, r.Equal(out))

	b, err = json.Marshal(ResolvedFlags{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}
