package config

import (
	"errors"
	"testing"

	"github.com/agentconsole/agentconsole/internal/testutil"
)

func TestParseFieldValue(testingHandle *testing.T) {
	cases := []struct {
		name      string
		fieldType FieldType
		input     string
		want      any
	}{
		{"quoted string", FieldString, `"hello \"you\""`, `hello "you"`},
		{"bare string", FieldString, "  plain ", "plain"},
		{"number", FieldNumber, "45.5", 45.5},
		{"bad number falls back", FieldNumber, "12abc", "12abc"},
		{"boolean", FieldBoolean, "TRUE", true},
		{"numeric boolean rejected", FieldBoolean, "1", "1"},
		{"string array", FieldStringArray, `"a, b", "c", d`, []string{"a, b", "c", "d"}},
		{"number array", FieldNumberArray, "1, 2,,3", []float64{1, 2, 3}},
		{"boolean array", FieldBooleanArray, "true, false", []bool{true, false}},
		{"bad boolean array falls back", FieldBooleanArray, "true, 0", "true, 0"},
		{"object", FieldObject, `{"nested":{"k":1}}`, map[string]any{"nested": map[string]any{"k": float64(1)}}},
		{"empty number", FieldNumber, "   ", float64(0)},
		{"empty array", FieldStringArray, "", []string{}},
		{"empty object", FieldObject, "", map[string]any{}},
	}
	for _, tc := range cases {
		testutil.AssertEqual(testingHandle, ParseFieldValue(tc.fieldType, tc.input), tc.want, tc.name)
	}
}

func TestParseFieldFlag(testingHandle *testing.T) {
	field, err := ParseFieldFlag("limit:number=10")
	testutil.RequireNoError(testingHandle, err, "typed flag")
	testutil.RequireEqual(testingHandle, field, CustomField{Key: "limit", Type: FieldNumber, Value: "10"}, "typed field")

	field, err = ParseFieldFlag("query=a=b")
	testutil.RequireNoError(testingHandle, err, "untyped flag")
	testutil.RequireEqual(testingHandle, field, CustomField{Key: "query", Type: FieldString, Value: "a=b"}, "untyped field")

	for _, bad := range []string{"novalue", "=x", "k:weird=1"} {
		_, err := ParseFieldFlag(bad)
		testutil.RequireTrue(testingHandle, errors.Is(err, ErrFieldFlag), "expected ErrFieldFlag for "+bad)
	}
}

func TestDetectAndFormatFieldValue(testingHandle *testing.T) {
	values := []any{"x", float64(2), true, []any{float64(1), float64(2)}, []any{"a", "b"}, map[string]any{"k": "v"}}
	want := []string{"x", "2", "true", "1, 2", `"a", "b"`, "{\n  \"k\": \"v\"\n}"}

	for i, value := range values {
		fieldType := DetectFieldType(value)
		text := FormatFieldValue(fieldType, value)
		testutil.AssertEqual(testingHandle, text, want[i], string(fieldType))
		testutil.AssertEqual(testingHandle, FormatFieldValue(fieldType, ParseFieldValue(fieldType, text)), text, "round trip "+string(fieldType))
	}
}
