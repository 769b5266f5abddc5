// Package fingerprint computes the SHA-256 digests the dedup engine and
// lineage store key on: one per file, one per row's uniqueness key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
)

// File computes the SHA-256 digest of an entire file's bytes, consuming r.
func File(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Bytes computes the SHA-256 digest of an in-memory byte slice.
func Bytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// RowKey computes the uniqueness-key digest from the normalized
// (trimmed, case-folded) values of the listed columns, in the order given.
// A separator byte between fields prevents "a","bc" and "ab","c" colliding.
func RowKey(values map[string]string, columns []string) [32]byte {
	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte(0x1f) // unit separator
		}
		v := strings.TrimSpace(values[col])
		sb.WriteString(strings.ToLower(v))
	}
	return sha256.Sum256([]byte(sb.String()))
}

// UniquenessKey computes the Dedup Engine's row-level key: the sorted tuple
// of normalized values of uniqueness_columns (sorted by value, not
// by column order, so the same set of values always produces the same key
// regardless of how uniqueness_columns was listed).
func UniquenessKey(values map[string]string, uniquenessColumns []string) [32]byte {
	normalized := make([]string, len(uniquenessColumns))
	for i, col := range uniquenessColumns {
		normalized[i] = strings.ToLower(strings.TrimSpace(values[col]))
	}
	sort.Strings(normalized)
	return sha256.Sum256([]byte(strings.Join(normalized, string(rune(0x1f)))))
}

// Hex returns the lowercase hex encoding of a digest, used as the cache key
// and the persisted fingerprint column value.
func Hex(digest [32]byte) string {
	return hex.EncodeToString(digest[:])
}
