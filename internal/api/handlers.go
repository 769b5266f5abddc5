package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/ingest/internal/analyzer"
	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/audit"
	"github.com/rowforge/ingest/internal/fingerprint"
	"github.com/rowforge/ingest/internal/model"
	"github.com/rowforge/ingest/internal/objectstore"
	"github.com/rowforge/ingest/internal/parser"
	"github.com/rowforge/ingest/internal/pipeline"
	"github.com/rowforge/ingest/internal/sampler"
	"github.com/rowforge/ingest/internal/sqlident"
	"github.com/rowforge/ingest/internal/taskmanager"
	"github.com/rowforge/ingest/internal/validator"
)

// mapDataRequest is the shared body shape for /map-data and /map-b2-data:
// an already-resolved MappingConfig plus either inline rows or an object
// store reference to the source file.
type mapDataRequest struct {
	ImportID   uuid.UUID           `json:"import_id"`
	ObjectKey  string              `json:"object_key,omitempty"`
	FileKind   model.FileKind      `json:"file_kind,omitempty"`
	Rows       []model.Row         `json:"rows,omitempty"`
	Config     model.MappingConfig `json:"config"`
	ForceAsync bool                `json:"force_async,omitempty"`
}

type importResponse struct {
	ImportID       uuid.UUID          `json:"import_id"`
	Status         model.ImportStatus `json:"status"`
	RowsProcessed  int                `json:"rows_processed"`
	RowsInserted   int                `json:"rows_inserted"`
	RowsSkippedDup int                `json:"rows_skipped_dup"`
	RowsErrored    int                `json:"rows_errored"`
}

type taskAcceptedResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

// handleMapData maps and inserts an inline row set directly, rejecting
// anything over SyncRowLimit in favor of the async path.
func (s *Server) handleMapData(w http.ResponseWriter, r *http.Request) {
	var req mapDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}
	if req.ImportID == uuid.Nil {
		req.ImportID = uuid.New()
	}
	if len(req.Rows) > pipeline.SyncRowLimit {
		respondError(w, r, apperr.New(model.ErrValidationError,
			fmt.Sprintf("%d rows exceeds the synchronous limit of %d; use /map-b2-data-async", len(req.Rows), pipeline.SyncRowLimit)))
		return
	}

	s.runSyncImport(w, r, req.ImportID, req.Rows, req.Config, nil)
}

// handleMapB2Data fetches a previously uploaded source file from object
// storage, decodes it, and runs it through the same synchronous path as
// /map-data.
func (s *Server) handleMapB2Data(w http.ResponseWriter, r *http.Request) {
	var req mapDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}
	if req.ImportID == uuid.Nil {
		req.ImportID = uuid.New()
	}

	rows, fileFP, err := s.decodeObjectRows(r.Context(), req.ObjectKey, req.FileKind)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if req.ForceAsync {
		s.enqueueImport(w, r, req.ImportID, rows, req.Config, &fileFP)
		return
	}
	if len(rows) > pipeline.SyncRowLimit {
		respondError(w, r, apperr.New(model.ErrValidationError,
			fmt.Sprintf("%d rows exceeds the synchronous limit of %d; use /map-b2-data-async", len(rows), pipeline.SyncRowLimit)))
		return
	}

	s.runSyncImport(w, r, req.ImportID, rows, req.Config, &fileFP)
}

// handleMapB2DataAsync fetches and decodes the object-store file, then
// hands the decoded rows to the Task Manager regardless of size, returning
// immediately with a pollable task ID.
func (s *Server) handleMapB2DataAsync(w http.ResponseWriter, r *http.Request) {
	var req mapDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}
	if req.ImportID == uuid.Nil {
		req.ImportID = uuid.New()
	}

	rows, fileFP, err := s.decodeObjectRows(r.Context(), req.ObjectKey, req.FileKind)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.enqueueImport(w, r, req.ImportID, rows, req.Config, &fileFP)
}

// enqueueImport prepares the target table and import record, hands the rows
// to the Task Manager, and answers 202 with the pollable task ID.
func (s *Server) enqueueImport(w http.ResponseWriter, r *http.Request, importID uuid.UUID, rows []model.Row, cfg model.MappingConfig, fileFP *[32]byte) {
	if err := s.prepareImport(r.Context(), importID, rows, cfg, fileFP); err != nil {
		respondError(w, r, err)
		return
	}

	taskID, err := s.tasks.Enqueue(r.Context(), taskmanager.Payload{ImportID: importID, Rows: rows, Config: cfg})
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to enqueue import job", err))
		return
	}

	s.recordAudit(r.Context(), audit.Params{Action: audit.ActionImportStart, TableName: cfg.TableName, ImportID: &importID, IPAddress: requestIP(r), Details: map[string]any{"task_id": taskID}})

	writeJSON(w, http.StatusAccepted, taskAcceptedResponse{TaskID: taskID})
}

// decodeObjectRows fetches key from object storage and parses it according
// to kind, returning the full row set plus the SHA-256 fingerprint of the
// raw file bytes ("the SHA-256 of a file uniquely identifies it").
//
// A retried mapping request reuses the same object_key, so the raw bytes
// are cached under a key derived from object_key: a retry
// skips the object-store fetch entirely, re-parsing only the cached bytes.
func (s *Server) decodeObjectRows(ctx context.Context, key string, kind model.FileKind) ([]model.Row, [32]byte, error) {
	if s.objects == nil {
		return nil, [32]byte{}, apperr.New(model.ErrInternal, "object storage is not configured")
	}

	cacheKey := fingerprint.Hex(fingerprint.Bytes([]byte(key)))

	data, hit, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		slog.Warn("parse cache get failed", "key", key, "err", err)
	}
	if !hit {
		data, err = s.objects.Get(ctx, key)
		if err != nil {
			return nil, [32]byte{}, apperr.Wrap(model.ErrInternal, "failed to fetch uploaded file", err)
		}
		if err := s.cache.Put(ctx, cacheKey, data); err != nil {
			slog.Warn("parse cache put failed", "key", key, "err", err)
		}
	}

	fp := fingerprint.Bytes(data)

	_, reader, err := parser.Parse(bytes.NewReader(data), kind, int64(len(data)))
	if err != nil {
		return nil, fp, apperr.Wrap(model.ErrParseError, "failed to parse uploaded file", err)
	}

	var rows []model.Row
	for reader.Next() {
		rows = append(rows, reader.Row())
	}
	if err := reader.Err(); err != nil {
		return nil, fp, apperr.Wrap(model.ErrParseError, "failed to decode uploaded file", err)
	}
	return rows, fp, nil
}

// prepareImport ensures the target table exists and a pending
// import_history row has been created, idempotent enough to be called
// before either the sync or async execution path.
//
// fileFP is the SHA-256 of the source file's raw bytes when one is
// available (the object-store paths). It is nil for /map-data, whose rows
// arrive as already-decoded JSON with no underlying byte representation to
// hash; that path falls back to rowSetFingerprint.
func (s *Server) prepareImport(ctx context.Context, importID uuid.UUID, rows []model.Row, cfg model.MappingConfig, fileFP *[32]byte) error {
	if err := s.lineage.EnsureTable(ctx, cfg.DBSchema); err != nil {
		return apperr.Wrap(model.ErrInternal, "failed to prepare target table", err).WithTable(cfg.TableName)
	}

	snapshot, _ := json.Marshal(cfg)
	fp := rowSetFingerprint(rows, cfg.DuplicateCheck.UniquenessColumns)
	if fileFP != nil {
		fp = *fileFP
	}

	if cfg.DuplicateCheck.Enabled && cfg.DuplicateCheck.CheckFileLevel && !cfg.DuplicateCheck.ForceImport {
		prior, found, err := s.db.FindActiveOrCompletedImport(ctx, fp, cfg.TableName)
		if err != nil {
			return apperr.Wrap(model.ErrInternal, "failed to check file-level duplicate", err)
		}
		if found && !cfg.DuplicateCheck.AllowFileLevelRetry {
			return apperr.New(model.ErrDuplicateFile, "this file has already been imported into "+cfg.TableName).
				WithTable(cfg.TableName).
				WithSuggestions("set duplicate_check.allow_file_level_retry to reprocess", "prior import_id: "+prior.ImportID.String())
		}
	}

	return s.db.CreateImportHistory(ctx, model.ImportHistory{
		ImportID:          importID,
		SourceFingerprint: fp,
		TargetTable:       cfg.TableName,
		MappingSnapshot:   snapshot,
	})
}

// rowSetFingerprint hashes every row's uniqueness-key fingerprint together
// to produce a best-effort file-level identity when no raw file bytes are
// available. Two files with equal row counts and identical
// uniqueness-column values collide here by construction; callers that hold
// the raw bytes should prefer fingerprint.Bytes over this fallback.
func rowSetFingerprint(rows []model.Row, uniquenessColumns []string) [32]byte {
	var buf bytes.Buffer
	for _, row := range rows {
		key := fingerprint.RowKey(row.Values, uniquenessColumns)
		buf.Write(key[:])
	}
	return fingerprint.Bytes(buf.Bytes())
}

// runSyncImport drives the Map -> Dedup -> Insert pipeline inline within
// the request and writes the import result envelope. fileFP is forwarded
// to prepareImport; see its doc comment.
func (s *Server) runSyncImport(w http.ResponseWriter, r *http.Request, importID uuid.UUID, rows []model.Row, cfg model.MappingConfig, fileFP *[32]byte) {
	ctx := r.Context()

	if err := s.prepareImport(ctx, importID, rows, cfg, fileFP); err != nil {
		respondError(w, r, err)
		return
	}

	s.recordAudit(ctx, audit.Params{Action: audit.ActionImportStart, TableName: cfg.TableName, ImportID: &importID, IPAddress: requestIP(r)})

	result, err := s.executor.Execute(ctx, importID, rows, cfg, nil, nil)
	if err != nil {
		s.recordAudit(ctx, audit.Params{Action: audit.ActionImportFail, TableName: cfg.TableName, ImportID: &importID, IPAddress: requestIP(r), Reason: err.Error()})
		respondError(w, r, apperr.Wrap(model.ErrInternal, "import failed", err).WithTable(cfg.TableName))
		return
	}

	s.recordAudit(ctx, audit.Params{
		Action: audit.ActionImportComplete, TableName: cfg.TableName, ImportID: &importID, IPAddress: requestIP(r),
		RowsAffected: result.RowsInserted,
	})

	writeJSON(w, http.StatusOK, importResponse{
		ImportID:       result.ImportID,
		Status:         result.Status,
		RowsProcessed:  result.RowsProcessed,
		RowsInserted:   result.RowsInserted,
		RowsSkippedDup: result.RowsSkippedDup,
		RowsErrored:    result.RowsErrored,
	})
}

// analyzeFileRequest describes one Analyzer invocation.
type analyzeFileRequest struct {
	ObjectKey      string                  `json:"object_key"`
	FileKind       model.FileKind          `json:"file_kind"`
	Mode           analyzer.Mode           `json:"mode"`
	ConflictPolicy analyzer.ConflictPolicy `json:"conflict_policy"`
	MaxIterations  int                     `json:"max_iterations,omitempty"`
	ThreadID       uuid.UUID               `json:"thread_id,omitempty"`
}

type analyzeFileResponse struct {
	ThreadID       uuid.UUID               `json:"thread_id"`
	Recommendation analyzer.Recommendation `json:"recommendation"`
	AutoExecuted   bool                    `json:"auto_executed"`
}

// handleAnalyzeFile runs the bounded Analyzer agent against an uploaded
// file and reports in auto_executed whether ShouldAutoExecute accepts the
// request's mode and the recommendation's confidence. It does not start
// the import itself; /execute-recommended-import does that.
func (s *Server) handleAnalyzeFile(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		respondError(w, r, apperr.New(model.ErrInternal, "the Analyzer is not configured"))
		return
	}

	var req analyzeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}
	if req.ThreadID == uuid.Nil {
		req.ThreadID = uuid.New()
	}

	rows, fp, err := s.decodeObjectRows(r.Context(), req.ObjectKey, req.FileKind)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sample := sampler.Sample(rows, fp)
	if len(sample) == 0 {
		writeJSON(w, http.StatusOK, analyzeFileResponse{
			ThreadID:       req.ThreadID,
			Recommendation: analyzer.Recommendation{Reasoning: "file contains no rows to analyze after parsing"},
		})
		return
	}

	tables, err := s.db.ListTables(r.Context())
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to list existing tables", err))
		return
	}

	rec, err := s.llm.Analyze(r.Context(), analyzer.Request{
		ThreadID:       req.ThreadID,
		FileHeaders:    sample[0].VisibleColumns(),
		Sample:         sample,
		Fingerprint:    fp,
		Mode:           req.Mode,
		ConflictPolicy: req.ConflictPolicy,
		MaxIterations:  req.MaxIterations,
		ExistingTables: tables,
		GetSchema:      s.getSchemaFunc(r.Context()),
	})
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "analysis failed", err))
		return
	}

	writeJSON(w, http.StatusOK, analyzeFileResponse{
		ThreadID:       req.ThreadID,
		Recommendation: rec,
		AutoExecuted:   analyzer.ShouldAutoExecute(req.Mode, rec.Confidence),
	})
}

// getSchemaFunc adapts store.GetTableSchema's context-first signature to the
// context-free callback analyzer.Request expects, binding the request's
// context for the agent's lifetime.
func (s *Server) getSchemaFunc(ctx context.Context) func(string) (model.TableSchema, bool, error) {
	return func(table string) (model.TableSchema, bool, error) {
		return s.db.GetTableSchema(ctx, table)
	}
}

// handleAnalyzeFileInteractive resumes a persisted Analyzer thread,
// letting a human steer a manual-mode decision across requests; the
// session must outlive a single process.
func (s *Server) handleAnalyzeFileInteractive(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		respondError(w, r, apperr.New(model.ErrInternal, "the Analyzer is not configured"))
		return
	}

	var req analyzeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}
	if req.ThreadID == uuid.Nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "thread_id is required to resume an interactive session"))
		return
	}

	if _, err := s.db.LoadThread(r.Context(), req.ThreadID); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load thread", err))
		return
	}

	rows, fp, err := s.decodeObjectRows(r.Context(), req.ObjectKey, req.FileKind)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sample := sampler.Sample(rows, fp)
	if len(sample) == 0 {
		writeJSON(w, http.StatusOK, analyzeFileResponse{
			ThreadID:       req.ThreadID,
			Recommendation: analyzer.Recommendation{Reasoning: "file contains no rows to analyze after parsing"},
		})
		return
	}

	tables, err := s.db.ListTables(r.Context())
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to list existing tables", err))
		return
	}

	rec, err := s.llm.Analyze(r.Context(), analyzer.Request{
		ThreadID:       req.ThreadID,
		FileHeaders:    sample[0].VisibleColumns(),
		Sample:         sample,
		Fingerprint:    fp,
		Mode:           analyzer.ModeManual,
		ConflictPolicy: req.ConflictPolicy,
		MaxIterations:  req.MaxIterations,
		ExistingTables: tables,
		GetSchema:      s.getSchemaFunc(r.Context()),
	})
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "analysis failed", err))
		return
	}

	writeJSON(w, http.StatusOK, analyzeFileResponse{ThreadID: req.ThreadID, Recommendation: rec})
}

// executeRecommendedImportRequest lets a client turn a prior Recommendation
// into an actual import without re-running the agent.
type executeRecommendedImportRequest struct {
	ObjectKey      string                  `json:"object_key"`
	FileKind       model.FileKind          `json:"file_kind"`
	Recommendation analyzer.Recommendation `json:"recommendation"`
	DBSchema       model.TableSchema       `json:"db_schema"`
	DuplicateCheck model.DuplicateCheck    `json:"duplicate_check"`
}

func (s *Server) handleExecuteRecommendedImport(w http.ResponseWriter, r *http.Request) {
	var req executeRecommendedImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}

	rows, fileFP, err := s.decodeObjectRows(r.Context(), req.ObjectKey, req.FileKind)
	if err != nil {
		respondError(w, r, err)
		return
	}

	cfg := model.MappingConfig{
		TableName:      req.Recommendation.TargetTable,
		DBSchema:       req.DBSchema,
		Mappings:       req.Recommendation.ColumnMapping,
		DuplicateCheck: req.DuplicateCheck,
	}

	importID := uuid.New()
	if len(rows) > pipeline.SyncRowLimit {
		s.enqueueImport(w, r, importID, rows, cfg, &fileFP)
		return
	}

	s.runSyncImport(w, r, importID, rows, cfg, &fileFP)
}

// createUploadRequest starts a multipart upload session.
type createUploadRequest struct {
	FileName      string `json:"file_name"`
	ContentType   string `json:"content_type"`
	DeclaredSize  int64  `json:"declared_size"`
	ExpectedParts int    `json:"expected_parts"`
}

type createUploadResponse struct {
	UploadID        uuid.UUID `json:"upload_id"`
	ObjectKey       string    `json:"object_key"`
	PresignedPutURL string    `json:"presigned_put_url,omitempty"` // single-shot alternative to the part-by-part flow
}

func (s *Server) handleCreateUploadSession(w http.ResponseWriter, r *http.Request) {
	if s.objects == nil {
		respondError(w, r, apperr.New(model.ErrInternal, "object storage is not configured"))
		return
	}
	var req createUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}

	uploadID := uuid.New()
	key := objectstore.ObjectKey(uploadID.String(), req.FileName)

	sess, err := s.objects.CreateSession(r.Context(), key, req.ContentType)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to start upload session", err))
		return
	}

	if err := s.db.CreateUploadSession(r.Context(), model.UploadSession{
		UploadID:      uploadID,
		ObjectKey:     sess.Key,
		FileName:      req.FileName,
		DeclaredSize:  req.DeclaredSize,
		ExpectedParts: req.ExpectedParts,
		Status:        model.UploadSessionActive,
	}); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to record upload session", err))
		return
	}
	if err := s.db.RecordPartETag(r.Context(), uploadID, 0, sess.UploadID); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to persist object-store upload id", err))
		return
	}

	putURL, err := s.objects.PresignUpload(r.Context(), key, req.ContentType)
	if err != nil {
		slog.Warn("presigning upload url failed", "upload_id", uploadID, "err", err)
		putURL = ""
	}

	writeJSON(w, http.StatusCreated, createUploadResponse{UploadID: uploadID, ObjectKey: key, PresignedPutURL: putURL})
}

// objectStoreUploadIDKey is the sentinel part number under which the
// object store's own multipart UploadID is stashed in PartETags, since
// model.UploadSession has no dedicated field for it and every other key is
// a real 1-indexed part number.
const objectStoreUploadIDKey = 0

func objectstoreSession(key, uploadID string) objectstore.Session {
	return objectstore.Session{Key: key, UploadID: uploadID}
}

// partResultsFrom renders a session's recorded ETags as the ordered part
// list CompleteSession expects, skipping the sentinel UploadID entry.
func partResultsFrom(sess model.UploadSession) []objectstore.PartResult {
	parts := make([]objectstore.PartResult, 0, len(sess.PartETags))
	for partNumber, etag := range sess.PartETags {
		if partNumber == objectStoreUploadIDKey {
			continue
		}
		parts = append(parts, objectstore.PartResult{PartNumber: int32(partNumber), ETag: etag})
	}
	sortParts(parts)
	return parts
}

func sortParts(parts []objectstore.PartResult) {
	for i := 1; i < len(parts); i++ {
		for j := i; j > 0 && parts[j-1].PartNumber > parts[j].PartNumber; j-- {
			parts[j-1], parts[j] = parts[j], parts[j-1]
		}
	}
}

type uploadPartResponse struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// handleUploadPart proxies one part's bytes to the object store, recording
// the resulting ETag so completion can be finalized later, even across a
// worker restart.
func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid upload id"))
		return
	}
	partNumber, err := strconv.Atoi(chi.URLParam(r, "partNumber"))
	if err != nil || partNumber <= 0 {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid part number"))
		return
	}

	sess, ok, err := s.db.GetUploadSession(r.Context(), uploadID)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load upload session", err))
		return
	}
	if !ok || sess.Status != model.UploadSessionActive {
		respondError(w, r, apperr.New(model.ErrValidationError, "unknown or inactive upload session"))
		return
	}

	objectStoreUploadID := sess.PartETags[0]
	result, err := s.objects.UploadPart(r.Context(), objectstoreSession(sess.ObjectKey, objectStoreUploadID), int32(partNumber), r.Body)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to upload part", err))
		return
	}

	if err := s.db.RecordPartETag(r.Context(), uploadID, partNumber, result.ETag); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to record part etag", err))
		return
	}

	writeJSON(w, http.StatusOK, uploadPartResponse{PartNumber: result.PartNumber, ETag: result.ETag})
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid upload id"))
		return
	}

	sess, ok, err := s.db.GetUploadSession(r.Context(), uploadID)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load upload session", err))
		return
	}
	if !ok {
		respondError(w, r, apperr.New(model.ErrValidationError, "unknown upload session"))
		return
	}

	objectStoreUploadID := sess.PartETags[0]
	parts := partResultsFrom(sess)

	objSess := objectstoreSession(sess.ObjectKey, objectStoreUploadID)
	if err := s.objects.CompleteSession(r.Context(), objSess, parts); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to complete upload", err))
		return
	}

	if err := s.db.CompleteUploadSession(r.Context(), uploadID); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to mark upload session complete", err))
		return
	}

	downloadURL, err := s.objects.PresignDownload(r.Context(), sess.ObjectKey)
	if err != nil {
		slog.Warn("presigning download url failed", "upload_id", uploadID, "err", err)
		downloadURL = ""
	}

	writeJSON(w, http.StatusOK, map[string]string{"object_key": sess.ObjectKey, "download_url": downloadURL})
}

func (s *Server) handleAbortUpload(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid upload id"))
		return
	}

	sess, ok, err := s.db.GetUploadSession(r.Context(), uploadID)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load upload session", err))
		return
	}
	if ok {
		objectStoreUploadID := sess.PartETags[0]
		_ = s.objects.AbortSession(r.Context(), objectstoreSession(sess.ObjectKey, objectStoreUploadID))
		// A session aborted after completion leaves an assembled object behind.
		_ = s.objects.Delete(r.Context(), sess.ObjectKey)
	}

	if err := s.db.AbortUploadSession(r.Context(), uploadID); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to mark upload session aborted", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryDatabaseRequest is a read-only SQL query gated through the Query
// Validator.
type queryDatabaseRequest struct {
	SQL string `json:"sql"`
}

func (s *Server) handleQueryDatabase(w http.ResponseWriter, r *http.Request) {
	var req queryDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}

	schema, err := s.validatorSchema(r.Context())
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load schema for validation", err))
		return
	}

	result := validator.Validate(req.SQL, schema)
	if !result.Allowed {
		respondError(w, r, apperr.New(model.ErrProtectedTable, result.Message))
		return
	}

	rows, err := s.db.Pool.Query(r.Context(), req.SQL)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "query execution failed", err))
		return
	}
	defer rows.Close()

	records, fields, err := collectRows(rows)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to read query results", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"columns": fields, "rows": records})
}

// generateSQLRequest asks the Analyzer's Bedrock client to translate a
// natural-language question into a validated SELECT statement.
type generateSQLRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleGenerateSQL(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		respondError(w, r, apperr.New(model.ErrInternal, "the Analyzer is not configured"))
		return
	}

	var req generateSQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "invalid request body", err))
		return
	}

	schema, err := s.validatorSchema(r.Context())
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load schema", err))
		return
	}

	sql, err := s.llm.GenerateSQL(r.Context(), req.Question, schema.Tables)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "sql generation failed", err))
		return
	}

	result := validator.Validate(sql, schema)
	if !result.Allowed {
		respondError(w, r, apperr.New(model.ErrProtectedTable, result.Message).WithSuggestions("rephrase the question to avoid protected tables"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"sql": sql})
}

// handleExportQuery runs a validated SELECT and streams the result as CSV
// within the configured export timeout.
func (s *Server) handleExportQuery(w http.ResponseWriter, r *http.Request) {
	sql := r.URL.Query().Get("sql")
	if sql == "" {
		respondError(w, r, apperr.New(model.ErrValidationError, "sql query parameter is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.exportTTL)
	defer cancel()

	schema, err := s.validatorSchema(ctx)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load schema for validation", err))
		return
	}

	result := validator.Validate(sql, schema)
	if !result.Allowed {
		respondError(w, r, apperr.New(model.ErrProtectedTable, result.Message))
		return
	}

	rows, err := s.db.Pool.Query(ctx, sql)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrValidationError, "query execution failed", err))
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="export.csv"`)

	cw := csv.NewWriter(w)
	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = string(f.Name)
	}
	if err := cw.Write(header); err != nil {
		return
	}

	written := 0
	for rows.Next() {
		if ctx.Err() != nil {
			return
		}
		if s.exportRowLimit > 0 && written >= s.exportRowLimit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = fmt.Sprintf("%v", v)
		}
		if err := cw.Write(record); err != nil {
			return
		}
		written++
	}
	cw.Flush()
}

type tableSummary struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	names, err := s.db.ListTables(r.Context())
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to list tables", err))
		return
	}
	out := make([]tableSummary, 0, len(names))
	for _, name := range names {
		schema, ok, err := s.db.GetTableSchema(r.Context(), name)
		if err != nil || !ok {
			continue
		}
		out = append(out, tableSummary{TableName: name, Columns: schema.ColumnNames()})
	}
	writeJSON(w, http.StatusOK, out)
}

// lookupTable resolves the path's table name, rejecting protected names
// and unknown tables, and returns the declared schema.
func (s *Server) lookupTable(w http.ResponseWriter, r *http.Request) (model.TableSchema, bool) {
	name := chi.URLParam(r, "tableName")
	if model.IsProtected(name) {
		respondError(w, r, apperr.New(model.ErrProtectedTable, "table "+name+" is a protected system table"))
		return model.TableSchema{}, false
	}
	schema, ok, err := s.db.GetTableSchema(r.Context(), name)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load table schema", err))
		return model.TableSchema{}, false
	}
	if !ok {
		respondError(w, r, apperr.New(model.ErrValidationError, "unknown table "+name))
		return model.TableSchema{}, false
	}
	return schema, true
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.lookupTable(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tableSummary{TableName: schema.TableName, Columns: schema.ColumnNames()})
}

func (s *Server) handleGetTableSchema(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.lookupTable(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleGetTableStats(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.lookupTable(w, r)
	if !ok {
		return
	}
	stats, err := s.db.GetTableStats(r.Context(), sqlident.Quote(schema.TableName))
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load table stats", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type rollbackResponse struct {
	ImportID   uuid.UUID `json:"import_id"`
	RowsUndone int64     `json:"rows_undone"`
}

// handleRollback performs the cascade undo for one import.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	tableName := chi.URLParam(r, "tableName")
	importID, err := uuid.Parse(chi.URLParam(r, "importID"))
	if err != nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid import id"))
		return
	}

	rowsUndone, err := s.lineage.Undo(r.Context(), importID, tableName)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "rollback failed", err).WithTable(tableName))
		return
	}

	s.recordAudit(r.Context(), audit.Params{
		Action: audit.ActionRollback, TableName: tableName, ImportID: &importID, IPAddress: requestIP(r),
		RowsAffected: int(rowsUndone),
	})

	writeJSON(w, http.StatusOK, rollbackResponse{ImportID: importID, RowsUndone: rowsUndone})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid task id"))
		return
	}
	task, ok, err := s.db.GetJob(r.Context(), taskID)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to load task", err))
		return
	}
	if !ok {
		respondError(w, r, apperr.New(model.ErrValidationError, "unknown task "+taskID.String()))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		respondError(w, r, apperr.New(model.ErrValidationError, "invalid task id"))
		return
	}
	if err := s.db.CancelJob(r.Context(), taskID); err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to cancel task", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAudit returns recent audit entries, newest first, filterable by
// table and action.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		respondError(w, r, apperr.New(model.ErrInternal, "auditing is not configured"))
		return
	}
	f := audit.Filter{
		TableName: r.URL.Query().Get("table"),
		Action:    audit.Action(r.URL.Query().Get("action")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			f.Limit = n
		}
	}
	entries, err := s.audit.List(r.Context(), f)
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to list audit entries", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleExportAudit streams the filtered audit log as CSV.
func (s *Server) handleExportAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		respondError(w, r, apperr.New(model.ErrInternal, "auditing is not configured"))
		return
	}
	data, err := s.audit.ExportCSV(r.Context(), audit.Filter{
		TableName: r.URL.Query().Get("table"),
		Action:    audit.Action(r.URL.Query().Get("action")),
	})
	if err != nil {
		respondError(w, r, apperr.Wrap(model.ErrInternal, "failed to export audit log", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Pool.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// collectRows drains a pgx.Rows result into JSON-friendly records, used by
// the ad hoc query endpoint.
func collectRows(rows pgx.Rows) ([]map[string]any, []string, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var records []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		record := make(map[string]any, len(columns))
		for i, v := range values {
			record[columns[i]] = v
		}
		records = append(records, record)
	}
	return records, columns, rows.Err()
}
