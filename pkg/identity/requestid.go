package identity

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
)

// RequestID computes the representation-independent hash of a map of fields.
// Supported values: []byte, string, Principal, uint64, [][]byte, []Principal
// and nested map[string]any. Nil values are skipped.
func RequestID(fields map[string]any) ([32]byte, error) {
	pairs := make([][]byte, 0, len(fields))
	for key, value := range fields {
		if value == nil {
			continue
		}
		valueHash, err := hashValue(value)
		if err != nil {
			return [32]byte{}, fmt.Errorf("field %q: %w", key, err)
		}
		keyHash := sha256.Sum256([]byte(key))
		pairs = append(pairs, append(keyHash[:], valueHash...))
	}
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i], pairs[j]) < 0
	})
	return sha256.Sum256(bytes.Join(pairs, nil)), nil
}

func hashValue(value any) ([]byte, error) {
	var sum [32]byte
	switch v := value.(type) {
	case []byte:
		sum = sha256.Sum256(v)
	case Principal:
		sum = sha256.Sum256(v)
	case string:
		sum = sha256.Sum256([]byte(v))
	case uint64:
		sum = sha256.Sum256(leb128(v))
	case [][]byte:
		items := make([]byte, 0, len(v)*32)
		for _, item := range v {
			h := sha256.Sum256(item)
			items = append(items, h[:]...)
		}
		sum = sha256.Sum256(items)
	case []Principal:
		items := make([]byte, 0, len(v)*32)
		for _, item := range v {
			h := sha256.Sum256(item)
			items = append(items, h[:]...)
		}
		sum = sha256.Sum256(items)
	case map[string]any:
		nested, err := RequestID(v)
		if err != nil {
			return nil, err
		}
		sum = nested
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
	return sum[:], nil
}

func leb128(v uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
