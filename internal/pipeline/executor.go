// Package pipeline implements the Import Executor: the three-phase
// concurrent driver behind every import. Phase 0 (Map) and Phase 1 (Dedup) run
// concurrently across a bounded worker pool; Phase 2 (Insert) runs
// sequentially in chunk_index order to avoid deadlocks and preserve
// source_row_number ordering.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/dedup"
	"github.com/rowforge/ingest/internal/fingerprint"
	"github.com/rowforge/ingest/internal/mapper"
	"github.com/rowforge/ingest/internal/model"
	"github.com/rowforge/ingest/internal/sqlident"
	"github.com/rowforge/ingest/internal/store"
	"github.com/rowforge/ingest/internal/transform"
)

// ChunkSize is the number of rows handed to one worker as a unit.
const ChunkSize = 10_000

// SyncRowLimit is the upper bound for a synchronous import; beyond it,
// clients must use the async Task Manager path.
const SyncRowLimit = 50_000

// WorkerCount is W = min(4, available cores).
func WorkerCount() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// ProgressFunc reports phase completion percentages (Map done = 33%,
// Dedup done = 66%, Insert complete = 100%).
type ProgressFunc func(percent int, message string)

// CancelFunc reports whether the running import has been cancelled; the
// insert phase checks it between chunks.
type CancelFunc func(ctx context.Context) (bool, error)

// Result is the outcome of one Execute call.
type Result struct {
	ImportID       uuid.UUID
	RowsProcessed  int
	RowsInserted   int
	RowsSkippedDup int
	RowsErrored    int
	Status         model.ImportStatus
}

// Executor drives one import end to end against the dynamic target table.
type Executor struct {
	db *store.Store
}

// New returns an Executor backed by the given persistence layer.
func New(db *store.Store) *Executor {
	return &Executor{db: db}
}

// Execute applies the configured row transformations, then runs the
// three-phase pipeline over the resulting row set.
// progress and cancel may be nil for a synchronous, non-cancellable run.
func (e *Executor) Execute(ctx context.Context, importID uuid.UUID, rows []model.Row, cfg model.MappingConfig, progress ProgressFunc, cancel CancelFunc) (Result, error) {
	synchronous := progress == nil
	if progress == nil {
		progress = func(int, string) {}
	}
	if cancel == nil {
		cancel = func(context.Context) (bool, error) { return false, nil }
	}

	if synchronous && len(rows) > SyncRowLimit {
		return Result{}, apperr.New(model.ErrTimeout, "import exceeds synchronous row limit; use the async task endpoint")
	}

	if err := e.db.MarkProcessing(ctx, importID); err != nil {
		return Result{}, apperr.Wrap(model.ErrInternal, "could not mark import processing", err)
	}

	// Row transformations run over the whole stream before any chunking,
	// so explodes and filters settle the row set the later phases see.
	rows, err := transform.Apply(rows, cfg.Rules.RowTransformations)
	if err != nil {
		e.fail(ctx, importID, err)
		return Result{}, apperr.Wrap(model.ErrValidationError, "row transformation failed", err)
	}

	chunks := chunk(rows, ChunkSize)

	// Phase 0: Map, concurrent across the worker pool. Order between
	// chunks is preserved via chunk indices, not completion order.
	mapped := make([][]mapper.MappedRow, len(chunks))
	if err := e.runPool(len(chunks), func(i int) error {
		m, err := mapper.Map(chunks[i], cfg)
		if err != nil {
			return err
		}
		mapped[i] = m
		return nil
	}); err != nil {
		e.fail(ctx, importID, err)
		return Result{}, err
	}
	progress(33, "mapping complete")

	// Phase 1: Dedup, same pool, re-scanning mapped chunks.
	existing, err := e.loadExistingKeys(ctx, cfg)
	if err != nil {
		e.fail(ctx, importID, err)
		return Result{}, apperr.Wrap(model.ErrInternal, "could not pre-load existing keys", err)
	}
	seen := dedup.NewSeenSet()

	outcomes := make([][]dedup.Outcome, len(chunks))
	if err := e.runPool(len(chunks), func(i int) error {
		outcomes[i] = dedup.FilterChunk(mapped[i], cfg.DuplicateCheck.UniquenessColumns, existing, seen, cfg.DuplicateCheck.ForceImport)
		return nil
	}); err != nil {
		e.fail(ctx, importID, err)
		return Result{}, err
	}
	progress(66, "deduplication complete")

	// Phase 2: Insert, sequential in chunk_index order, one transaction
	// per chunk, deliberately not parallelized.
	result := Result{ImportID: importID}
	for i, chunkOutcomes := range outcomes {
		if cancelled, err := cancel(ctx); err != nil {
			e.fail(ctx, importID, err)
			return Result{}, err
		} else if cancelled {
			result.Status = model.ImportFailed
			_ = e.db.FailImport(ctx, importID, result.RowsProcessed, result.RowsInserted, result.RowsSkippedDup, result.RowsErrored, "cancelled")
			return result, apperr.New(model.ErrInternal, "import cancelled")
		}

		inserted, skipped, errored, err := e.insertChunk(ctx, importID, cfg, chunkOutcomes)
		result.RowsProcessed += len(chunkOutcomes)
		result.RowsInserted += inserted
		result.RowsSkippedDup += skipped
		result.RowsErrored += errored
		if err != nil {
			result.Status = model.ImportFailed
			_ = e.db.FailImport(ctx, importID, result.RowsProcessed, result.RowsInserted, result.RowsSkippedDup, result.RowsErrored, err.Error())
			return result, apperr.Wrap(model.ErrInternal, fmt.Sprintf("chunk %d insert failed", i), err)
		}
	}

	result.Status = model.ImportCompleted
	if err := e.db.CompleteImport(ctx, importID, result.RowsProcessed, result.RowsInserted, result.RowsSkippedDup, result.RowsErrored); err != nil {
		return result, apperr.Wrap(model.ErrInternal, "could not finalize import", err)
	}
	progress(100, "insert complete")
	return result, nil
}

func (e *Executor) fail(ctx context.Context, importID uuid.UUID, err error) {
	_ = e.db.FailImport(ctx, importID, 0, 0, 0, 0, err.Error())
}

// chunk partitions rows into slices of at most size, preserving order.
func chunk(rows []model.Row, size int) [][]model.Row {
	if len(rows) == 0 {
		return nil
	}
	var chunks [][]model.Row
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[i:end])
	}
	return chunks
}

// runPool runs fn(i) for i in [0, n) across WorkerCount() goroutines,
// returning the first error encountered. Remaining work still drains so
// no worker goroutine is left blocked on a send.
func (e *Executor) runPool(n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	workers := WorkerCount()
	if workers > n {
		workers = n
	}

	jobs := make(chan int, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				errs <- fn(i)
			}
		}()
	}

	var firstErr error
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// loadExistingKeys pre-loads the target table's existing uniqueness keys
// with a single SELECT, shared read-only across all worker chunks.
// Returns an empty set if the table does not exist yet (first import).
func (e *Executor) loadExistingKeys(ctx context.Context, cfg model.MappingConfig) (dedup.KeySet, error) {
	keys := make(dedup.KeySet)
	if !cfg.DuplicateCheck.Enabled || len(cfg.DuplicateCheck.UniquenessColumns) == 0 {
		return keys, nil
	}

	cols := make([]string, len(cfg.DuplicateCheck.UniquenessColumns))
	for i, c := range cfg.DuplicateCheck.UniquenessColumns {
		cols[i] = sqlident.Quote(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", joinCols(cols), sqlident.Quote(cfg.DBSchema.TableName))

	rows, err := e.db.Pool.Query(ctx, query)
	if err != nil {
		// Table not created yet -- no existing keys to dedup against.
		return keys, nil
	}
	defer rows.Close()

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		m := make(map[string]string, len(vals))
		for i, v := range vals {
			m[cfg.DuplicateCheck.UniquenessColumns[i]] = fmt.Sprintf("%v", v)
		}
		keys[fingerprint.UniquenessKey(m, cfg.DuplicateCheck.UniquenessColumns)] = struct{}{}
	}
	return keys, rows.Err()
}

func joinCols(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

// insertChunk inserts one chunk's non-duplicate, non-rejected rows within a
// single transaction, embedding _import_id/_imported_at/_source_row_number/
// _corrections_applied into every row. Rows go in via COPY; rejected and
// duplicate rows are counted, never written.
func (e *Executor) insertChunk(ctx context.Context, importID uuid.UUID, cfg model.MappingConfig, outcomes []dedup.Outcome) (inserted, skipped, errored int, err error) {
	tx, err := e.db.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	defer tx.Rollback(ctx)

	columns := cfg.DBSchema.ColumnNames()
	copyColumns := append(append([]string{}, columns...), "_import_id", "_imported_at", "_source_row_number", "_corrections_applied")

	var copyRows [][]any
	for _, o := range outcomes {
		if o.Row.Rejected {
			errored++
			_ = e.db.InsertMappingError(ctx, model.MappingError{ImportID: importID, SourceRowNumber: o.Row.SourceRowNumber, Reason: o.Row.RejectReason})
			continue
		}
		if o.IsDuplicate {
			skipped++
			continue
		}

		row := make([]any, 0, len(columns)+4)
		for _, c := range columns {
			row = append(row, o.Row.Values[c])
		}
		row = append(row, importID, time.Now().UTC(), o.Row.SourceRowNumber, correctionsJSON(o.Row.Corrections))
		copyRows = append(copyRows, row)
	}

	if len(copyRows) > 0 {
		identifier := pgx.Identifier{cfg.DBSchema.TableName}
		_, err := tx.CopyFrom(ctx, identifier, copyColumns, pgx.CopyFromRows(copyRows))
		if err != nil {
			return 0, 0, 0, err
		}
		inserted = len(copyRows)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, 0, err
	}
	return inserted, skipped, errored, nil
}

func correctionsJSON(corrections map[string]model.Correction) []byte {
	if len(corrections) == 0 {
		return nil
	}
	b, err := json.Marshal(corrections)
	if err != nil {
		return nil
	}
	return b
}
