// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// compliant serialization for deterministic hashing of DatumPlan artifacts.
//
// Every content-addressed identifier in the system — Decision.id,
// Step.step_id, report_hash, content_hash — must be computed over bytes
// produced here, never over ad-hoc json.Marshal output, so that hashing
// is stable across Go map iteration order and struct field order.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Keys are sorted lexicographically by UTF-8 bytes, HTML escaping is
// disabled, and numbers are preserved in their shortest round-trip form.
// v is first passed through the standard encoder (so struct json tags
// and omitempty are honored), then decoded generically and walked by a
// single-pass writer that emits canonical form directly into one buffer.
func JCS(v interface{}) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	w := &canonWriter{buf: &bytes.Buffer{}}
	if err := w.write(generic); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// JCSString returns the canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the full SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash truncates a hex digest to n characters. Used for
// Decision.id and Step.step_id, whose length is fixed system-wide.
func ShortHash(hexDigest string, n int) string {
	if n >= len(hexDigest) {
		return hexDigest
	}
	return hexDigest[:n]
}

// toGeneric round-trips v through the standard encoder so struct json
// tags, omitempty, and custom MarshalJSON methods are honored, then
// decodes it back with UseNumber so integers survive without float
// rounding.
func toGeneric(v interface{}) (interface{}, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode: %w", err)
	}
	return generic, nil
}

// canonWriter emits RFC 8785 canonical JSON into a single shared
// buffer, rather than building nested byte slices per value — one
// writer instance walks the whole tree.
type canonWriter struct {
	buf     *bytes.Buffer
	scratch bytes.Buffer
}

func (w *canonWriter) write(v interface{}) error {
	switch t := v.(type) {
	case nil:
		w.buf.WriteString("null")
		return nil
	case bool:
		if t {
			w.buf.WriteString("true")
		} else {
			w.buf.WriteString("false")
		}
		return nil
	case json.Number:
		w.buf.WriteString(t.String())
		return nil
	case string:
		return w.writeString(t)
	case []interface{}:
		return w.writeArray(t)
	case map[string]interface{}:
		return w.writeObject(t)
	default:
		// Values that didn't round-trip through json.Number (e.g. a raw
		// float64 handed in directly rather than via toGeneric) fall
		// back to the standard encoder for a single scalar.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		w.buf.Write(b)
		return nil
	}
}

// writeString quotes and escapes s the way encoding/json does, except
// with HTML escaping disabled, so `<`, `>` and `&` are written
// literally. encoding/json still escapes U+2028 and U+2029 regardless
// of that setting.
func (w *canonWriter) writeString(s string) error {
	w.scratch.Reset()
	enc := json.NewEncoder(&w.scratch)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	w.buf.Write(bytes.TrimSuffix(w.scratch.Bytes(), []byte{'\n'}))
	return nil
}

func (w *canonWriter) writeArray(items []interface{}) error {
	w.buf.WriteByte('[')
	for i, elem := range items {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		if err := w.write(elem); err != nil {
			return err
		}
	}
	w.buf.WriteByte(']')
	return nil
}

func (w *canonWriter) writeObject(obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		if err := w.writeString(k); err != nil {
			return err
		}
		w.buf.WriteByte(':')
		if err := w.write(obj[k]); err != nil {
			return err
		}
	}
	w.buf.WriteByte('}')
	return nil
}
