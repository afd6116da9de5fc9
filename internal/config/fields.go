package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FieldType selects how a custom field's raw text is parsed.
type FieldType string

// Supported field types.
const (
	FieldString       FieldType = "string"
	FieldNumber       FieldType = "number"
	FieldBoolean      FieldType = "boolean"
	FieldStringArray  FieldType = "string[]"
	FieldNumberArray  FieldType = "number[]"
	FieldBooleanArray FieldType = "boolean[]"
	FieldObject       FieldType = "object"
)

// FieldTypes lists every supported field type.
var FieldTypes = []FieldType{
	FieldString,
	FieldNumber,
	FieldBoolean,
	FieldStringArray,
	FieldNumberArray,
	FieldBooleanArray,
	FieldObject,
}

// CustomField is an extra invocation body field typed in as text.
type CustomField struct {
	// Key is the body field name.
	Key string `yaml:"key"`
	// Type selects the parser.
	Type FieldType `yaml:"type"`
	// Value is the raw text to parse.
	Value string `yaml:"value"`
}

// Parse returns the typed value of the field.
func (f CustomField) Parse() any {
	return ParseFieldValue(f.Type, f.Value)
}

// ParseFieldValue converts raw text to a typed value. Strings may be quoted
// JSON strings; booleans accept only true or false; arrays are comma
// separated. Empty input yields the type's zero value and anything that fails
// to parse falls back to the trimmed text.
func ParseFieldValue(fieldType FieldType, input string) any {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return zeroFieldValue(fieldType)
	}
	value, err := parseTypedValue(fieldType, trimmed)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"type": fieldType, "value": input}).Warn("custom field kept as text")
		return trimmed
	}
	return value
}

func zeroFieldValue(fieldType FieldType) any {
	switch fieldType {
	case FieldNumber:
		return float64(0)
	case FieldBoolean:
		return false
	case FieldStringArray:
		return []string{}
	case FieldNumberArray:
		return []float64{}
	case FieldBooleanArray:
		return []bool{}
	case FieldObject:
		return map[string]any{}
	default:
		return ""
	}
}

func parseTypedValue(fieldType FieldType, trimmed string) (any, error) {
	switch fieldType {
	case FieldString:
		if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
			var text string
			if err := json.Unmarshal([]byte(trimmed), &text); err != nil {
				return nil, err
			}
			return text, nil
		}
		return trimmed, nil
	case FieldNumber:
		return parseNumber(trimmed)
	case FieldBoolean:
		return parseBoolean(trimmed)
	case FieldStringArray:
		return splitQuoted(trimmed), nil
	case FieldNumberArray:
		numbers := []float64{}
		for _, item := range splitPlain(trimmed) {
			number, err := parseNumber(item)
			if err != nil {
				return nil, err
			}
			numbers = append(numbers, number)
		}
		return numbers, nil
	case FieldBooleanArray:
		booleans := []bool{}
		for _, item := range splitPlain(trimmed) {
			boolean, err := parseBoolean(item)
			if err != nil {
				return nil, err
			}
			booleans = append(booleans, boolean)
		}
		return booleans, nil
	case FieldObject:
		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return trimmed, nil
	}
}

func parseNumber(text string) (float64, error) {
	number, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", text)
	}
	return number, nil
}

func parseBoolean(text string) (bool, error) {
	switch strings.ToLower(text) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q (must be true or false)", text)
}

// splitPlain splits on commas, dropping empty items.
func splitPlain(text string) []string {
	var items []string
	for _, item := range strings.Split(text, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// splitQuoted splits on commas outside double quotes. Quoted items are
// JSON-unquoted; anything else has stray edge quotes removed.
func splitQuoted(text string) []string {
	items := []string{}
	var current strings.Builder
	inQuotes := false
	escapeNext := false

	flush := func() {
		item := strings.TrimSpace(current.String())
		current.Reset()
		if item == "" {
			return
		}
		var decoded string
		if err := json.Unmarshal([]byte(item), &decoded); err == nil {
			items = append(items, decoded)
			return
		}
		items = append(items, strings.TrimSuffix(strings.TrimPrefix(item, `"`), `"`))
	}

	for _, r := range text {
		switch {
		case escapeNext:
			escapeNext = false
		case r == '\\':
			escapeNext = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return items
}

// ErrFieldFlag reports a malformed --field value.
var ErrFieldFlag = errors.New("invalid field flag")

// ParseFieldFlag parses "key=value" or "key:type=value". Without a type the
// value is a string.
func ParseFieldFlag(flag string) (CustomField, error) {
	name, value, ok := strings.Cut(flag, "=")
	if !ok {
		return CustomField{}, fmt.Errorf("%w: %q (want key[:type]=value)", ErrFieldFlag, flag)
	}
	key, rawType, typed := strings.Cut(name, ":")
	key = strings.TrimSpace(key)
	if key == "" {
		return CustomField{}, fmt.Errorf("%w: %q has no key", ErrFieldFlag, flag)
	}
	fieldType := FieldString
	if typed {
		fieldType = FieldType(strings.TrimSpace(rawType))
		if !validFieldType(fieldType) {
			return CustomField{}, fmt.Errorf("%w: unknown type %q", ErrFieldFlag, rawType)
		}
	}
	return CustomField{Key: key, Type: fieldType, Value: value}, nil
}

func validFieldType(fieldType FieldType) bool {
	for _, known := range FieldTypes {
		if known == fieldType {
			return true
		}
	}
	return false
}

// DetectFieldType guesses the field type of an already typed value.
func DetectFieldType(value any) FieldType {
	switch typed := value.(type) {
	case string:
		return FieldString
	case int, int64, float64:
		return FieldNumber
	case bool:
		return FieldBoolean
	case []any:
		if len(typed) == 0 {
			return FieldStringArray
		}
		switch typed[0].(type) {
		case int, int64, float64:
			return FieldNumberArray
		case bool:
			return FieldBooleanArray
		}
		return FieldStringArray
	case []string:
		return FieldStringArray
	case []float64:
		return FieldNumberArray
	case []bool:
		return FieldBooleanArray
	case map[string]any:
		return FieldObject
	}
	return FieldString
}

// FormatFieldValue renders a typed value back into editable text.
func FormatFieldValue(fieldType FieldType, value any) string {
	if value == nil {
		return ""
	}
	switch fieldType {
	case FieldStringArray, FieldNumberArray, FieldBooleanArray:
		items := arrayItems(value)
		if items == nil {
			return fmt.Sprint(value)
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if fieldType == FieldStringArray {
				encoded, _ := json.Marshal(fmt.Sprint(item))
				parts = append(parts, string(encoded))
				continue
			}
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case FieldObject:
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	default:
		return fmt.Sprint(value)
	}
}

func arrayItems(value any) []any {
	switch typed := value.(type) {
	case []any:
		return typed
	case []string:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = item
		}
		return items
	case []float64:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = item
		}
		return items
	case []bool:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = item
		}
		return items
	}
	return nil
}
