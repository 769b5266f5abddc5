package fingerprint

import (
	"bytes"
	"testing"
)

func TestFile(t *testing.T) {
	a, err := File(bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	b, err := File(bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if a != b {
		t.Fatalf("same bytes produced different fingerprints")
	}

	c, err := File(bytes.NewReader([]byte("hello world!")))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if a == c {
		t.Fatalf("different bytes produced the same fingerprint")
	}
}

func TestBytesMatchesFile(t *testing.T) {
	data := []byte("the quick brown fox")
	a, err := File(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if Bytes(data) != a {
		t.Fatalf("Bytes and File disagree for identical input")
	}
}

func TestRowKeyNormalizes(t *testing.T) {
	a := RowKey(map[string]string{"email": "  Jane@Example.com "}, []string{"email"})
	b := RowKey(map[string]string{"email": "jane@example.com"}, []string{"email"})
	if a != b {
		t.Fatalf("RowKey should trim and case-fold before hashing")
	}
}

func TestRowKeySeparatorPreventsAmbiguity(t *testing.T) {
	a := RowKey(map[string]string{"x": "a", "y": "bc"}, []string{"x", "y"})
	b := RowKey(map[string]string{"x": "ab", "y": "c"}, []string{"x", "y"})
	if a == b {
		t.Fatalf("RowKey(\"a\",\"bc\") collided with RowKey(\"ab\",\"c\")")
	}
}

func TestUniquenessKeyOrderIndependent(t *testing.T) {
	values := map[string]string{"first": "Ann", "last": "Lee"}
	a := UniquenessKey(values, []string{"first", "last"})
	b := UniquenessKey(values, []string{"last", "first"})
	if a != b {
		t.Fatalf("UniquenessKey must not depend on uniqueness_columns ordering")
	}
}

func TestHexRoundTrip(t *testing.T) {
	digest := Bytes([]byte("x"))
	hex := Hex(digest)
	if len(hex) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(hex))
	}
}
