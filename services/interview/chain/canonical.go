// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chain maintains the per-session tamper-evident anti-cheat log:
// every event's hash covers its body plus the previous event's hash, so any
// rewrite of history invalidates everything after it.
package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// CanonicalJSON serializes a value deterministically for hashing:
// UTF-8, object keys sorted lexicographically at every depth, compact
// separators, null/true/false lowercased, numbers in shortest round-trip
// decimal form (integer form when exact). Two clients producing the same
// logical value always produce the same bytes.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, val)
	case float64:
		return writeNumber(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case json.Number:
		buf.WriteString(val.String())
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// Structs and other composites round-trip through encoding/json
		// into the shapes handled above.
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonicalize %T: %w", v, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("canonicalize %T: %w", v, err)
		}
		return writeCanonical(buf, generic)
	}
	return nil
}

// writeString emits a JSON string without HTML escaping, matching what the
// browser-side serializer produces.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	b := tmp.Bytes()
	// Encode appends a newline.
	buf.Write(bytes.TrimRight(b, "\n"))
	return nil
}

// writeNumber emits the shortest decimal that round-trips, using integer
// form for exact integers within int64 range.
func writeNumber(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number %v not representable in JSON", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
