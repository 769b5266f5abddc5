package sampler

import (
	"strconv"
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func makeRows(n int) []model.Row {
	rows := make([]model.Row, n)
	for i := range rows {
		rows[i] = model.Row{
			Values:          map[string]string{"id": strconv.Itoa(i + 1)},
			SourceRowNumber: i + 1,
		}
	}
	return rows
}

var fp = [32]byte{1, 2, 3, 4, 5, 6, 7, 8}

func TestSampleBoundary100(t *testing.T) {
	rows := makeRows(100)
	out := Sample(rows, fp)
	if len(out) != 100 {
		t.Fatalf("N=100: expected all 100 rows, got %d", len(out))
	}
}

func TestSampleBoundary1000(t *testing.T) {
	rows := makeRows(1000)
	out := Sample(rows, fp)
	if len(out) != 100 {
		t.Fatalf("N=1000 (100<N<=1000 band): expected 100 rows, got %d", len(out))
	}
	for i := 0; i < 50; i++ {
		if out[i].SourceRowNumber != i+1 {
			t.Fatalf("first 50 rows must be verbatim; row %d has number %d", i, out[i].SourceRowNumber)
		}
	}
}

func TestSampleBoundary10000(t *testing.T) {
	rows := makeRows(10000)
	out := Sample(rows, fp)
	if len(out) != 200 {
		t.Fatalf("N=10000 (1000<N<=10000 band): expected 200 rows, got %d", len(out))
	}
}

func TestSampleAbove10000(t *testing.T) {
	rows := makeRows(10001)
	out := Sample(rows, fp)
	if len(out) != 500 {
		t.Fatalf("N=10001: expected 500 rows, got %d", len(out))
	}
}

func TestSampleDeterministic(t *testing.T) {
	rows := makeRows(5000)
	a := Sample(rows, fp)
	b := Sample(rows, fp)
	if len(a) != len(b) {
		t.Fatalf("same fingerprint produced different sample sizes")
	}
	for i := range a {
		if a[i].SourceRowNumber != b[i].SourceRowNumber {
			t.Fatalf("sample not deterministic for same fingerprint at index %d", i)
		}
	}
}

func TestSampleDifferentFingerprintCanDiffer(t *testing.T) {
	// The 100<N<=1000 band picks its tail rows randomly, seeded by the
	// fingerprint; the larger bands are stratified and seed-independent.
	rows := makeRows(500)
	a := Sample(rows, fp)
	other := [32]byte{8, 7, 6, 5, 4, 3, 2, 1}
	b := Sample(rows, other)
	same := true
	for i := range a {
		if a[i].SourceRowNumber != b[i].SourceRowNumber {
			same = false
			break
		}
	}
	if same {
		t.Skip("different seeds happened to produce the same random pick; not a failure, just unlucky")
	}
}

func TestSampleSmallFile(t *testing.T) {
	rows := makeRows(10)
	out := Sample(rows, fp)
	if len(out) != 10 {
		t.Fatalf("N<=100: expected all rows returned, got %d", len(out))
	}
}
