package dedup

import (
	"testing"

	"github.com/rowforge/ingest/internal/fingerprint"
	"github.com/rowforge/ingest/internal/mapper"
)

func mapped(email string) mapper.MappedRow {
	return mapper.MappedRow{Values: map[string]any{"email": email}}
}

func TestFilterChunkSkipsExistingKey(t *testing.T) {
	existing := KeySet{fingerprint.UniquenessKey(map[string]string{"email": "a@example.com"}, []string{"email"}): {}}
	seen := NewSeenSet()

	out := FilterChunk([]mapper.MappedRow{mapped("a@example.com")}, []string{"email"}, existing, seen, false)
	if !out[0].IsDuplicate {
		t.Fatalf("row matching a pre-loaded existing key should be flagged duplicate")
	}
}

func TestFilterChunkCatchesIntraFileDuplicate(t *testing.T) {
	existing := KeySet{}
	seen := NewSeenSet()
	rows := []mapper.MappedRow{mapped("a@example.com"), mapped("a@example.com")}

	out := FilterChunk(rows, []string{"email"}, existing, seen, false)
	if out[0].IsDuplicate {
		t.Fatalf("first occurrence should not be a duplicate")
	}
	if !out[1].IsDuplicate {
		t.Fatalf("second occurrence of the same key within the file should be a duplicate")
	}
}

func TestFilterChunkForceImportBypassesDedup(t *testing.T) {
	existing := KeySet{fingerprint.UniquenessKey(map[string]string{"email": "a@example.com"}, []string{"email"}): {}}
	seen := NewSeenSet()

	out := FilterChunk([]mapper.MappedRow{mapped("a@example.com")}, []string{"email"}, existing, seen, true)
	if out[0].IsDuplicate {
		t.Fatalf("force_import should bypass dedup entirely")
	}
}

func TestFilterChunkSkipsRejectedRows(t *testing.T) {
	existing := KeySet{}
	seen := NewSeenSet()
	rejected := mapper.MappedRow{Rejected: true, Values: map[string]any{"email": "a@example.com"}}

	out := FilterChunk([]mapper.MappedRow{rejected}, []string{"email"}, existing, seen, false)
	if out[0].IsDuplicate {
		t.Fatalf("a rejected (coercion-failed) row should never be marked a dedup duplicate")
	}
}

func TestSeenSetCheckAndAdd(t *testing.T) {
	s := NewSeenSet()
	var key [32]byte
	key[0] = 1

	if s.CheckAndAdd(key) {
		t.Fatalf("first CheckAndAdd should report not-seen")
	}
	if !s.CheckAndAdd(key) {
		t.Fatalf("second CheckAndAdd of the same key should report seen")
	}
}
