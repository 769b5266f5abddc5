package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/ingest/internal/model"
)

// CreateJob inserts a new pending import_jobs row on async submission.
// payload is the JSON-encoded request that started the job, kept
// so a crash-recovered worker can re-derive what to run.
func (s *Store) CreateJob(ctx context.Context, taskID uuid.UUID, payload []byte) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO import_jobs (task_id, status, progress, payload)
		VALUES ($1, $2, 0, $3)`, taskID, model.TaskPending, payload)
	return err
}

// ClaimNextJob atomically claims one pending job for processing using
// SELECT ... FOR UPDATE SKIP LOCKED, the Postgres-native analogue of a
// distributed job-queue lock: multiple worker processes can poll
// concurrently without claiming the same row twice.
func (s *Store) ClaimNextJob(ctx context.Context) (taskID uuid.UUID, payload []byte, ok bool, err error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, nil, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT task_id, payload FROM import_jobs
		WHERE status = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, model.TaskPending)

	if err := row.Scan(&taskID, &payload); err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, nil, false, nil
		}
		return uuid.Nil, nil, false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE import_jobs SET status = $2, updated_at = now() WHERE task_id = $1`,
		taskID, model.TaskProcessing); err != nil {
		return uuid.Nil, nil, false, err
	}

	return taskID, payload, true, tx.Commit(ctx)
}

// UpdateJobProgress writes progress at a phase boundary (Map done =
// 33%, Dedup done = 66%, Insert complete = 100%).
func (s *Store) UpdateJobProgress(ctx context.Context, taskID uuid.UUID, progress int, message string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE import_jobs SET progress = $2, message = $3, updated_at = now() WHERE task_id = $1`,
		taskID, progress, message)
	return err
}

// CompleteJob marks a job completed and records its final import_id/result.
func (s *Store) CompleteJob(ctx context.Context, taskID uuid.UUID, importID uuid.UUID, result []byte) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, progress = 100, import_id = $3, result = $4, updated_at = now()
		WHERE task_id = $1`, taskID, model.TaskCompleted, importID, result)
	return err
}

// FailJob marks a job failed with a message.
func (s *Store) FailJob(ctx context.Context, taskID uuid.UUID, message string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE import_jobs SET status = $2, message = $3, updated_at = now() WHERE task_id = $1`,
		taskID, model.TaskFailed, message)
	return err
}

// CancelJob is the admin call marking a running job failed; the worker
// checks this flag between chunks and aborts rather than committing the
// current chunk.
func (s *Store) CancelJob(ctx context.Context, taskID uuid.UUID) error {
	return s.FailJob(ctx, taskID, "cancelled by admin")
}

// GetJob returns a job's current state for client polling.
func (s *Store) GetJob(ctx context.Context, taskID uuid.UUID) (model.Task, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT task_id, status, progress, message, result, import_id, created_at, updated_at
		FROM import_jobs WHERE task_id = $1`, taskID)

	var t model.Task
	var importID *uuid.UUID
	err := row.Scan(&t.TaskID, &t.Status, &t.Progress, &t.Message, &t.Result, &importID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Task{}, false, nil
		}
		return model.Task{}, false, err
	}
	t.ImportID = importID
	return t, true, nil
}

// IsCancelled reports whether a job has been marked failed mid-run, checked
// by the executor between chunks.
func (s *Store) IsCancelled(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var status model.TaskStatus
	err := s.Pool.QueryRow(ctx, `SELECT status FROM import_jobs WHERE task_id = $1`, taskID).Scan(&status)
	if err != nil {
		return false, err
	}
	return status == model.TaskFailed, nil
}

// ReclaimStaleProcessingJobs reverts any job still "processing" back to
// "pending" on worker startup, since workers are stateless and a process
// that died mid-job leaves no other record of progress.
func (s *Store) ReclaimStaleProcessingJobs(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE import_jobs SET status = $1, updated_at = now() WHERE status = $2`,
		model.TaskPending, model.TaskProcessing)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SweepAbandonedUploadSessions marks multipart upload sessions inactive
// past the given age as aborted.
func (s *Store) SweepAbandonedUploadSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE uploaded_files SET status = 'aborted'
		WHERE status = 'active' AND created_at < now() - $1::interval`,
		olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
