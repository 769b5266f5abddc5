// Package dedup implements the Dedup Engine: file-level detection by
// SHA-256 against import_history, and row-level detection against a
// pre-loaded existing-key set plus an in-flight "seen" set shared across
// worker chunks.
package dedup

import (
	"fmt"
	"sync"

	"github.com/rowforge/ingest/internal/fingerprint"
	"github.com/rowforge/ingest/internal/mapper"
)

// KeySet is the pre-loaded set of existing uniqueness keys for a target
// table, projected once via a single SELECT before any worker chunk runs.
// It is read-only after load and therefore safe to share across goroutines
// without a lock.
type KeySet map[[32]byte]struct{}

// SeenSet is the mutex-guarded in-flight set catching intra-file duplicates
// across concurrently processed chunks.
type SeenSet struct {
	mu   sync.Mutex
	seen map[[32]byte]struct{}
}

// NewSeenSet returns an empty in-flight set.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[[32]byte]struct{})}
}

// CheckAndAdd returns true if key was already seen (by this set or a prior
// call), adding it if not. Safe for concurrent use by multiple workers.
func (s *SeenSet) CheckAndAdd(key [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true
	}
	s.seen[key] = struct{}{}
	return false
}

// Outcome is the per-row dedup decision for one mapped row.
type Outcome struct {
	Row         mapper.MappedRow
	IsDuplicate bool
}

// FilterChunk checks each mapped row's uniqueness key against the
// pre-loaded existing set and the shared in-flight set, in that order.
// Rejected rows (from the Mapper) pass through marked non-duplicate since
// they are handled as coercion errors, not dedup decisions.
func FilterChunk(rows []mapper.MappedRow, uniquenessColumns []string, existing KeySet, seen *SeenSet, forceImport bool) []Outcome {
	out := make([]Outcome, len(rows))
	for i, row := range rows {
		if row.Rejected || forceImport {
			out[i] = Outcome{Row: row}
			continue
		}

		key := uniquenessKeyFromValues(row.Values, uniquenessColumns)

		if _, exists := existing[key]; exists {
			out[i] = Outcome{Row: row, IsDuplicate: true}
			continue
		}
		if seen.CheckAndAdd(key) {
			out[i] = Outcome{Row: row, IsDuplicate: true}
			continue
		}
		out[i] = Outcome{Row: row}
	}
	return out
}

func uniquenessKeyFromValues(values map[string]any, columns []string) [32]byte {
	stringValues := make(map[string]string, len(columns))
	for _, c := range columns {
		if v, ok := values[c]; ok && v != nil {
			stringValues[c] = toStringValue(v)
		}
	}
	return fingerprint.UniquenessKey(stringValues, columns)
}

func toStringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
