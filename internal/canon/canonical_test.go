package canon

import (
	"encoding/json"
	"math"
	"math/big"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", int64(-100), "-100"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"zero", 0, "0"},
		{"null", nil, "null"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array of ints", []any{1, 2, 3}, "[1,2,3]"},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
		{"json number int", json.Number("7"), "7"},
		{"json number float", json.Number("2.50"), "2.5"},
		{"raw message", json.RawMessage(`{ "b" : 1, "a" : [ 1 , 2 ] }`), `{"a":[1,2],"b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalNumbers(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0.1, "0.1"},
		{1.5, "1.5"},
		{100, "100"},
		{math.Copysign(0, -1), "0"},
		{1e21, "1e+21"},
		{1e20, "100000000000000000000"},
		{1e-7, "1e-7"},
		{0.000001, "0.000001"},
		{1.2345678901234568e20, "123456789012345680000"},
		{5e-324, "5e-324"},
		{-2.5e-8, "-2.5e-8"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalFloat32UsesShortestForm(t *testing.T) {
	result, err := Marshal(float32(0.1))
	require.NoError(t, err)
	assert.Equal(t, "0.1", string(result))
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"y": 1, "x": 2},
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000 - UTF-16 order differs from UTF-8
	obj := map[string]any{
		"\uE000": 1,
		"𐀀":      2,
	}

	result, err := Marshal(obj)
	require.NoError(t, err)

	// UTF-16: 0xD800 < 0xE000, so the surrogate pair sorts first
	assert.Equal(t, "{\"𐀀\":2,\"\uE000\":1}", string(result))
}

func TestMarshalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"html passes through", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `say "hi" \ bye`, `"say \"hi\" \\ bye"`},
		{"short escapes", "a\nb\tc\rd\be\ff", `"a\nb\tc\rd\be\ff"`},
		{"control char", "\x01\x1f", `"\u0001\u001f"`},
		{"line separator literal", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"non-ascii literal", "héllo 😀", `"héllo 😀"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalRejectsNonRepresentable(t *testing.T) {
	cyclicMap := map[string]any{}
	cyclicMap["self"] = cyclicMap

	cyclicSlice := make([]any, 1)
	cyclicSlice[0] = cyclicSlice

	tests := []struct {
		name  string
		input any
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
		{"nested NaN", map[string]any{"a": []any{math.NaN()}}},
		{"channel", make(chan int)},
		{"func", func() {}},
		{"complex", complex(1, 2)},
		{"invalid utf8", "\xff\xfe"},
		{"cyclic map", cyclicMap},
		{"cyclic slice", cyclicSlice},
		{"struct with NaN", struct{ F float64 }{math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.input)
			require.Error(t, err)
			assert.True(t, IsError(err), "expected *canon.Error, got %T", err)
		})
	}
}

func TestMarshalSharedSubtreeIsNotCycle(t *testing.T) {
	shared := map[string]any{"k": 1}
	obj := map[string]any{"a": shared, "b": shared}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"k":1},"b":{"k":1}}`, string(result))
}

func TestMarshalStructViaJSONTags(t *testing.T) {
	type inner struct {
		Z string `json:"z"`
		A int    `json:"a"`
	}
	type outer struct {
		Name  string  `json:"name"`
		Inner inner   `json:"inner"`
		Skip  *string `json:"skip,omitempty"`
	}

	result, err := Marshal(outer{Name: "x<y", Inner: inner{Z: "z", A: 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"inner":{"a":1,"z":"z"},"name":"x<y"}`, string(result))
}

func TestMarshalLargeIntegersAreExact(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"beyond int64", json.Number("12345678901234567890123"), "12345678901234567890123"},
		{"beyond uint64", json.Number("-184467440737095516160"), "-184467440737095516160"},
		{"leading zeros", json.Number("007"), "7"},
		{"negative zero", json.Number("-0"), "0"},
		{"max uint64", uint64(math.MaxUint64), "18446744073709551615"},
		{"big.Int", new(big.Int).Lsh(big.NewInt(1), 80), "1208925819614629174706176"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalStructIntegerMatchesDirect(t *testing.T) {
	type amount struct {
		X uint64 `json:"X"`
	}

	viaStruct, err := Marshal(amount{X: math.MaxUint64})
	require.NoError(t, err)
	assert.Equal(t, `{"X":18446744073709551615}`, string(viaStruct))

	eq, err := Equal(amount{X: math.MaxUint64}, map[string]any{"X": uint64(math.MaxUint64)})
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestMarshalDeterministicAcrossInsertionOrder(t *testing.T) {
	a := map[string]any{}
	a["one"] = 1
	a["two"] = []any{"x", map[string]any{"q": true, "p": nil}}
	a["three"] = 0.25

	b := map[string]any{}
	b["three"] = 0.25
	b["two"] = []any{"x", map[string]any{"p": nil, "q": true}}
	b["one"] = 1

	ab := MustMarshal(a)
	bb := MustMarshal(b)
	assert.Equal(t, string(ab), string(bb))

	// Deep clone through a parse round trip.
	clone, err := Parse(ab)
	require.NoError(t, err)
	assert.Equal(t, string(ab), string(MustMarshal(clone)))

	eq, err := Equal(a, clone)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
}

func TestCompareKeys(t *testing.T) {
	assert.Equal(t, 0, CompareKeys("a", "a"))
	assert.Equal(t, -1, CompareKeys("a", "b"))
	assert.Equal(t, -1, CompareKeys("a", "aa"))
	assert.Equal(t, 1, CompareKeys("\uE000", "𐀀"))
}

func TestMarshalGolden(t *testing.T) {
	payload := map[string]any{
		"targetSequenceNumber": 3,
		"payload": map[string]any{
			"z":     1,
			"emoji": "😀",
			"a":     []any{true, nil, 1.5, "x<y"},
		},
		"fiberId": "f-1",
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "transition_payload", MustMarshal(payload))
}
