package pipeline

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func TestChunkPartitionsPreservingOrder(t *testing.T) {
	rows := make([]model.Row, 25)
	for i := range rows {
		rows[i] = model.Row{SourceRowNumber: i + 1}
	}

	chunks := chunk(rows, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks of size 10, got %d", len(chunks))
	}
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 5 {
		t.Fatalf("unexpected chunk sizes: %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][0].SourceRowNumber != 21 {
		t.Fatalf("expected last chunk to start at row 21, got %d", chunks[2][0].SourceRowNumber)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	if chunks := chunk(nil, 10); chunks != nil {
		t.Fatalf("expected nil chunks for empty input, got %v", chunks)
	}
}

func TestWorkerCountCappedAtFour(t *testing.T) {
	if n := WorkerCount(); n > 4 || n < 1 {
		t.Fatalf("expected WorkerCount in [1, 4], got %d", n)
	}
}

func TestRunPoolRunsEveryIndex(t *testing.T) {
	e := &Executor{}
	var count int64
	err := e.runPool(50, func(i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("runPool: %v", err)
	}
	if count != 50 {
		t.Fatalf("expected all 50 jobs to run, got %d", count)
	}
}

func TestRunPoolPropagatesFirstError(t *testing.T) {
	e := &Executor{}
	boom := errors.New("boom")
	err := e.runPool(5, func(i int) error {
		if i == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected runPool to surface the worker error, got %v", err)
	}
}

func TestRunPoolZeroJobs(t *testing.T) {
	e := &Executor{}
	if err := e.runPool(0, func(i int) error { t.Fatal("fn should not be called"); return nil }); err != nil {
		t.Fatalf("runPool with n=0: %v", err)
	}
}

func TestJoinCols(t *testing.T) {
	if got := joinCols([]string{`"a"`}); got != `"a"` {
		t.Fatalf("single column: got %q", got)
	}
	if got := joinCols([]string{`"a"`, `"b"`, `"c"`}); got != `"a", "b", "c"` {
		t.Fatalf("multiple columns: got %q", got)
	}
}

func TestCorrectionsJSONEmptyReturnsNil(t *testing.T) {
	if b := correctionsJSON(nil); b != nil {
		t.Fatalf("expected nil for empty corrections map, got %s", b)
	}
}

func TestCorrectionsJSONMarshalsMap(t *testing.T) {
	b := correctionsJSON(map[string]model.Correction{
		"age": {CorrectionType: model.CorrectionTypeCoercion, Before: "30.0", After: "30"},
	})
	if b == nil {
		t.Fatalf("expected non-nil JSON for a non-empty corrections map")
	}
}
