package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
// This is the serialization used for hashing and comparison of content.
// Persisted values use MarshalIRValue, which keeps strings byte for byte.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. No floats, no null
//
// Plain Go strings, ints, bools, []any and map[string]any are accepted and
// converted on the fly.
func MarshalCanonical(v any) ([]byte, error) {
	var irv IRValue
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case IRValue:
		irv = val
	default:
		converted, err := FromGo(v)
		if err != nil {
			return nil, err
		}
		irv = converted
	}

	var buf bytes.Buffer
	if err := writeValue(&buf, irv, writeOptions{normalize: true}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type writeOptions struct {
	// allowNull accepts IRNull anywhere in the value.
	allowNull bool
	// normalize NFC-normalizes strings and object keys.
	normalize bool
}

// writeValue appends the JSON form of v to buf.
func writeValue(buf *bytes.Buffer, v IRValue, opts writeOptions) error {
	switch val := v.(type) {
	case IRNull:
		if !opts.allowNull {
			return fmt.Errorf("null is forbidden in canonical JSON")
		}
		buf.WriteString("null")
	case IRString:
		s, err := marshalString(string(val), opts.normalize)
		if err != nil {
			return err
		}
		buf.Write(s)
	case IRInt:
		fmt.Fprintf(buf, "%d", int64(val))
	case IRBool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case IRArray:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem, opts); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case IRObject:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := marshalString(k, opts.normalize)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k], opts); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown IRValue type: %T", v)
	}
	return nil
}

// marshalString produces a JSON string, NFC normalized when normalize is set.
// Only control characters, backslash and quote are escaped.
func marshalString(s string, normalize bool) ([]byte, error) {
	if normalize {
		s = norm.NFC.String(s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. Escape sequences are consumed
// pairwise so an escaped backslash followed by "u2028" text is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
