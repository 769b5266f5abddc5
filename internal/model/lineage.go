package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportStatus is the state machine for one import attempt.
//
//	pending -> processing -> (completed | failed)
type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// ImportHistory is one record per import attempt.
type ImportHistory struct {
	ImportID          uuid.UUID
	SourceFingerprint [32]byte
	TargetTable       string
	RowsProcessed     int
	RowsInserted      int
	RowsSkippedDup    int
	RowsErrored       int
	StrategyAttempted string
	MappingSnapshot   []byte // JSON snapshot of the MappingConfig used
	Status            ImportStatus
	CreatedAt         time.Time
	CompletedAt       *time.Time
	ErrorMessage      string
}

// CorrectionType classifies how a field value was altered during mapping.
type CorrectionType string

const (
	CorrectionTypeCoercion CorrectionType = "type_coercion"
	CorrectionDatetimeStd  CorrectionType = "datetime_standardization"
	CorrectionRegexReplace CorrectionType = "regex_replace"
)

// Correction is recorded per field only when a value was actually altered
// during mapping.
type Correction struct {
	Before         string         `json:"before"`
	After          any            `json:"after"`
	CorrectionType CorrectionType `json:"correction_type"`
	TargetType     string         `json:"target_type,omitempty"`
	SourceFormat   string         `json:"source_format,omitempty"`
}

// MappingError is one per-row coercion failure, kept alongside the import
// rather than aborting it.
type MappingError struct {
	ImportID        uuid.UUID `json:"import_id"`
	SourceRowNumber int       `json:"source_row_number"`
	Reason          string    `json:"reason"`
}

// TaskStatus mirrors ImportStatus for async jobs.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one async import job.
type Task struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Status    TaskStatus      `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	ImportID  *uuid.UUID      `json:"import_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UploadSessionStatus is the lifecycle of a multipart object-store upload.
type UploadSessionStatus string

const (
	UploadSessionActive    UploadSessionStatus = "active"
	UploadSessionCompleted UploadSessionStatus = "completed"
	UploadSessionAborted   UploadSessionStatus = "aborted"
)

// UploadSession tracks one client-driven multipart upload to object storage.
type UploadSession struct {
	UploadID      uuid.UUID
	ObjectKey     string
	FileName      string
	DeclaredSize  int64
	ExpectedParts int
	PartETags     map[int]string // part number -> ETag
	Status        UploadSessionStatus
	CreatedAt     time.Time
}
