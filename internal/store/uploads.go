package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/ingest/internal/model"
)

// CreateUploadSession records a new multipart upload session, kept
// independent of the object store's own UploadID bookkeeping so a client
// can poll by the same handle it received from POST /uploads.
func (s *Store) CreateUploadSession(ctx context.Context, sess model.UploadSession) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO uploaded_files (upload_id, object_key, file_name, declared_size, expected_parts, part_etags, status)
		VALUES ($1, $2, $3, $4, $5, '{}', $6)`,
		sess.UploadID, sess.ObjectKey, sess.FileName, sess.DeclaredSize, sess.ExpectedParts, model.UploadSessionActive)
	return err
}

// RecordPartETag stores one committed part's ETag so CompleteSession can be
// called with the full ordered part list later, even across process
// restarts.
func (s *Store) RecordPartETag(ctx context.Context, uploadID uuid.UUID, partNumber int, etag string) error {
	sess, ok, err := s.GetUploadSession(ctx, uploadID)
	if err != nil {
		return err
	}
	if !ok {
		return pgx.ErrNoRows
	}
	if sess.PartETags == nil {
		sess.PartETags = map[int]string{}
	}
	sess.PartETags[partNumber] = etag

	body, err := json.Marshal(sess.PartETags)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `UPDATE uploaded_files SET part_etags = $2 WHERE upload_id = $1`, uploadID, body)
	return err
}

// GetUploadSession returns a session's current state, or ok=false if it
// doesn't exist.
func (s *Store) GetUploadSession(ctx context.Context, uploadID uuid.UUID) (model.UploadSession, bool, error) {
	var sess model.UploadSession
	var partEtagsJSON []byte
	var status string
	err := s.Pool.QueryRow(ctx, `
		SELECT upload_id, object_key, file_name, declared_size, expected_parts, part_etags, status, created_at
		FROM uploaded_files WHERE upload_id = $1`, uploadID).
		Scan(&sess.UploadID, &sess.ObjectKey, &sess.FileName, &sess.DeclaredSize, &sess.ExpectedParts,
			&partEtagsJSON, &status, &sess.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.UploadSession{}, false, nil
		}
		return model.UploadSession{}, false, err
	}
	sess.Status = model.UploadSessionStatus(status)
	sess.PartETags = map[int]string{}
	if len(partEtagsJSON) > 0 {
		_ = json.Unmarshal(partEtagsJSON, &sess.PartETags)
	}
	return sess, true, nil
}

// CompleteUploadSession marks a session completed once the multipart
// upload has been finalized against the object store.
func (s *Store) CompleteUploadSession(ctx context.Context, uploadID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE uploaded_files SET status = $2 WHERE upload_id = $1`,
		uploadID, model.UploadSessionCompleted)
	return err
}

// AbortUploadSession marks one session aborted on explicit client request.
// The abandoned-session sweep is SweepAbandonedUploadSessions.
func (s *Store) AbortUploadSession(ctx context.Context, uploadID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `UPDATE uploaded_files SET status = $2 WHERE upload_id = $1`,
		uploadID, model.UploadSessionAborted)
	return err
}
