package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders a record as deterministic JSON.
//
// Differences from encoding/json:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping
//   - strings NFC normalized
//   - decimals as exact JSON numbers, dates and datetimes as strings
//
// Output shape: {"collection":..,"fields":{..},"id":..,"ref":..,"related":{..}}
// with empty id, ref and related omitted.
func MarshalCanonical(r Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeRecord(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonicalRecords renders records as a canonical JSON array.
func MarshalCanonicalRecords(rs []Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeRecord(&buf, r); err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalCanonicalValue renders a single value.
func MarshalCanonicalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case Ref:
		return marshalCanonicalString(string(val))
	case Int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case Bool:
		return strconv.AppendBool(nil, bool(val)), nil
	case Decimal:
		return []byte(val.String()), nil
	case Date:
		return marshalCanonicalString(val.String())
	case DateTime:
		return marshalCanonicalString(val.String())
	default:
		return nil, fmt.Errorf("unsupported value type for canonical JSON: %T", v)
	}
}

func writeRecord(buf *bytes.Buffer, r Record) error {
	buf.WriteString(`{"collection":`)
	name, err := marshalCanonicalString(r.Collection)
	if err != nil {
		return err
	}
	buf.Write(name)

	buf.WriteString(`,"fields":{`)
	for i, k := range sortedKeys(r.Fields) {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalCanonicalValue(r.Fields[k])
		if err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')

	if r.ID != "" {
		buf.WriteString(`,"id":`)
		idb, _ := marshalCanonicalString(r.ID)
		buf.Write(idb)
	}
	if r.Ref != "" {
		buf.WriteString(`,"ref":`)
		refb, _ := marshalCanonicalString(r.Ref)
		buf.Write(refb)
	}
	if len(r.Related) > 0 {
		buf.WriteString(`,"related":{`)
		for i, name := range sortedKeys(r.Related) {
			if i > 0 {
				buf.WriteByte(',')
			}
			nb, _ := marshalCanonicalString(name)
			buf.Write(nb)
			buf.WriteByte(':')
			rows, err := MarshalCanonicalRecords(r.Related[name])
			if err != nil {
				return fmt.Errorf("related %q: %w", name, err)
			}
			buf.Write(rows)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

// marshalCanonicalString produces a JSON string with NFC normalization and
// without HTML escaping. U+2028 and U+2029 are emitted literally.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators turns the encoder's \u2028 and \u2029 escapes back
// into literal characters. An escape preceded by an odd run of backslashes
// is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units, which differs from Go's
// byte order for characters outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
