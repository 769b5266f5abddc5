package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/ingest/internal/fingerprint"
	"github.com/rowforge/ingest/internal/model"
)

// CreateImportHistory inserts a new pending import record.
func (s *Store) CreateImportHistory(ctx context.Context, h model.ImportHistory) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO import_history
			(import_id, source_fingerprint, target_table, strategy_attempted, mapping_snapshot, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ImportID, fingerprint.Hex(h.SourceFingerprint), h.TargetTable, h.StrategyAttempted, h.MappingSnapshot, model.ImportPending)
	return err
}

// FindActiveOrCompletedImport looks up a prior import with a matching
// fingerprint for the same target table, used by the file-level dedup
// check. Returns ok=false if none exists.
func (s *Store) FindActiveOrCompletedImport(ctx context.Context, fp [32]byte, targetTable string) (model.ImportHistory, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT import_id, source_fingerprint, target_table, rows_processed, rows_inserted,
		       rows_skipped_dup, rows_errored, strategy_attempted, status, created_at, completed_at, error_message
		FROM import_history
		WHERE source_fingerprint = $1 AND target_table = $2 AND status IN ('completed', 'processing', 'pending')
		ORDER BY created_at DESC
		LIMIT 1`, fingerprint.Hex(fp), targetTable)

	var h model.ImportHistory
	var hexFP string
	var completedAt *time.Time
	err := row.Scan(&h.ImportID, &hexFP, &h.TargetTable, &h.RowsProcessed, &h.RowsInserted,
		&h.RowsSkippedDup, &h.RowsErrored, &h.StrategyAttempted, &h.Status, &h.CreatedAt, &completedAt, &h.ErrorMessage)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.ImportHistory{}, false, nil
		}
		return model.ImportHistory{}, false, err
	}
	h.CompletedAt = completedAt
	return h, true, nil
}

// MarkProcessing transitions an import to processing.
func (s *Store) MarkProcessing(ctx context.Context, importID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE import_history SET status = $2 WHERE import_id = $1`, importID, model.ImportProcessing)
	return err
}

// CompleteImport records the final row counts and marks the import
// completed.
func (s *Store) CompleteImport(ctx context.Context, importID uuid.UUID, processed, inserted, skipped, errored int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE import_history
		SET status = $2, rows_processed = $3, rows_inserted = $4, rows_skipped_dup = $5,
		    rows_errored = $6, completed_at = now()
		WHERE import_id = $1`,
		importID, model.ImportCompleted, processed, inserted, skipped, errored)
	return err
}

// FailImport marks an import failed with the given message, preserving any
// chunks already committed.
func (s *Store) FailImport(ctx context.Context, importID uuid.UUID, processed, inserted, skipped, errored int, message string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE import_history
		SET status = $2, rows_processed = $3, rows_inserted = $4, rows_skipped_dup = $5,
		    rows_errored = $6, completed_at = now(), error_message = $7
		WHERE import_id = $1`,
		importID, model.ImportFailed, processed, inserted, skipped, errored, message)
	return err
}

// DeleteImportHistory performs the cascade undo: deleting the
// import_history row cascades to every data row it produced via the FK, and
// returns how many import_history rows were removed (0 or 1, since
// import_id is the primary key).
func (s *Store) DeleteImportHistory(ctx context.Context, importID uuid.UUID) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM import_history WHERE import_id = $1`, importID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountRowsForImport returns how many rows in the dynamic target table
// still carry this import_id, used to report the rollback's removed-row
// count before the cascade actually runs.
func (s *Store) CountRowsForImport(ctx context.Context, quotedTable string, importID uuid.UUID) (int64, error) {
	var count int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM `+quotedTable+` WHERE _import_id = $1`, importID).Scan(&count)
	return count, err
}

// InsertMappingError records a per-row coercion failure; it does not abort
// the import.
func (s *Store) InsertMappingError(ctx context.Context, me model.MappingError) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO mapping_errors (import_id, source_row_number, reason)
		VALUES ($1, $2, $3)`, me.ImportID, me.SourceRowNumber, me.Reason)
	return err
}

// ListMappingErrors returns the accumulated coercion failures for an
// import, ordered by source row number.
func (s *Store) ListMappingErrors(ctx context.Context, importID uuid.UUID) ([]model.MappingError, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT import_id, source_row_number, reason
		FROM mapping_errors WHERE import_id = $1 ORDER BY source_row_number`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MappingError
	for rows.Next() {
		var me model.MappingError
		if err := rows.Scan(&me.ImportID, &me.SourceRowNumber, &me.Reason); err != nil {
			return nil, err
		}
		out = append(out, me)
	}
	return out, rows.Err()
}
