package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON text stored in the
// attributes column and used for golden snapshots.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (RFC 8785)
//  2. No HTML escaping
//  3. Strings and keys are NFC normalized, so visually identical attribute
//     keys typed on different platforms collapse to one key
//  4. Integral floats keep a fractional part so they decode as Float
func MarshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case string:
		return marshalCanonicalString(val)
	case Int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case Float:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case Bool:
		return marshalBool(bool(val)), nil
	case bool:
		return marshalBool(val), nil
	case List:
		elems := make([]any, len(val))
		for i, e := range val {
			elems[i] = e
		}
		return marshalCanonicalArray(elems)
	case []any:
		return marshalCanonicalArray(val)
	case Object:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = e
		}
		return marshalCanonicalObject(m)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalBool(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// marshalCanonicalString encodes s as a JSON string after NFC normalization.
// Only control characters, backslash and quote are escaped.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline.
	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// run of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+6 <= len(data) && bytes.HasPrefix(data[i:], []byte(`\u202`)) && (data[i+5] == '8' || data[i+5] == '9') {
			run := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	// Normalize keys first so the sort sees the stored form.
	normalized := make(map[string]any, len(obj))
	keys := make(Object, len(obj))
	for k, v := range obj {
		nk := norm.NFC.String(k)
		normalized[nk] = v
		keys[nk] = Null{}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range keys.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalCanonical(normalized[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeAttributes renders attrs in canonical form for storage.
// A nil Object encodes as "{}".
func EncodeAttributes(attrs Object) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(data), nil
}

// DecodeAttributes parses stored attribute text. Empty text and "{}"
// decode to an empty Object.
func DecodeAttributes(data string) (Object, error) {
	if data == "" || data == "{}" {
		return Object{}, nil
	}
	var obj Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return obj, nil
}
