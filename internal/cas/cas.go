// Package cas provides content-addressing utilities: streaming SHA-256
// hashing and canonical JSON serialization.
package cas

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"sort"
)

// HashSize is the length of a hex-encoded object hash.
const HashSize = 64

// Hasher computes a SHA-256 digest over streamed chunks.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a new streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write feeds a chunk into the digest.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// SumHex finalizes the digest and returns it as lowercase hex.
func (h *Hasher) SumHex() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// SumHex computes the SHA-256 hash of data and returns it as lowercase hex.
func SumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsHash reports whether s looks like a full object hash.
func IsHash(s string) bool {
	if len(s) != HashSize {
		return false
	}
	return IsHexPrefix(s)
}

// IsHexPrefix reports whether s is non-empty lowercase-insensitive hex.
func IsHexPrefix(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// CanonicalJSON converts a value to canonical JSON: object keys sorted
// ascending, arrays in order, floats in Go's shortest round-trip form.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}

	return canonicalMarshal(obj)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return marshalSortedMap(val)
	case []interface{}:
		return marshalArray(val)
	case json.Number:
		// Preserve the literal as written by json.Marshal; Go already
		// emits the shortest round-trip representation for float64.
		return []byte(val.String()), nil
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := canonicalMarshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := canonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
