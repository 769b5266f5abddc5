// Package taskmanager implements the async Task Manager worker:
// a polling loop that claims queued import_jobs rows and drives
// them through the Import Executor, reporting progress at phase
// boundaries. Workers are stateless; jobs live in Postgres and are
// claimed, never assigned, so any number of worker processes can run.
package taskmanager

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rowforge/ingest/internal/model"
	"github.com/rowforge/ingest/internal/pipeline"
	"github.com/rowforge/ingest/internal/store"
)

// Payload is the JSON envelope persisted alongside a queued job, letting a
// crash-recovered worker re-derive exactly what to run.
type Payload struct {
	ImportID uuid.UUID           `json:"import_id"`
	Rows     []model.Row         `json:"rows"`
	Config   model.MappingConfig `json:"config"`
}

// Manager polls for queued jobs and drives them through the executor.
type Manager struct {
	db       *store.Store
	executor *pipeline.Executor
	interval time.Duration
}

// New returns a Manager that polls every interval for pending work.
func New(db *store.Store, executor *pipeline.Executor, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Manager{db: db, executor: executor, interval: interval}
}

// Enqueue persists a job payload and returns its task ID, called by the
// API layer's async import path (/map-b2-data-async, or a request with
// force_async set) regardless of row count.
func (m *Manager) Enqueue(ctx context.Context, p Payload) (uuid.UUID, error) {
	taskID := uuid.New()
	data, err := json.Marshal(p)
	if err != nil {
		return uuid.Nil, err
	}
	if err := m.db.CreateJob(ctx, taskID, data); err != nil {
		return uuid.Nil, err
	}
	return taskID, nil
}

// Run polls until ctx is cancelled, claiming and executing one job per
// iteration when work is available. Call ReclaimStaleProcessingJobs once
// before Run on process startup to recover jobs orphaned by a prior crash.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

// ReclaimStaleProcessingJobs reverts orphaned "processing" jobs back to
// "pending" so they're picked up again; call once at worker startup.
func (m *Manager) ReclaimStaleProcessingJobs(ctx context.Context) {
	n, err := m.db.ReclaimStaleProcessingJobs(ctx)
	if err != nil {
		slog.Error("reclaiming stale jobs failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("reclaimed stale processing jobs", "count", n)
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	taskID, payload, ok, err := m.db.ClaimNextJob(ctx)
	if err != nil {
		slog.Error("claiming job failed", "error", err)
		return
	}
	if !ok {
		return
	}

	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Error("unmarshalling job payload failed", "task_id", taskID, "error", err)
		_ = m.db.FailJob(ctx, taskID, "corrupt job payload: "+err.Error())
		return
	}

	slog.Info("claimed import job", "task_id", taskID, "import_id", p.ImportID, "rows", len(p.Rows))
	m.execute(ctx, taskID, p)
}

func (m *Manager) execute(ctx context.Context, taskID uuid.UUID, p Payload) {
	progress := func(percent int, message string) {
		if err := m.db.UpdateJobProgress(ctx, taskID, percent, message); err != nil {
			slog.Error("updating job progress failed", "task_id", taskID, "error", err)
		}
	}
	cancel := func(ctx context.Context) (bool, error) {
		return m.db.IsCancelled(ctx, taskID)
	}

	result, err := m.executor.Execute(ctx, p.ImportID, p.Rows, p.Config, progress, cancel)
	if err != nil {
		slog.Error("import execution failed", "task_id", taskID, "import_id", p.ImportID, "error", err)
		_ = m.db.FailJob(ctx, taskID, err.Error())
		return
	}

	resultJSON, _ := json.Marshal(result)
	if err := m.db.CompleteJob(ctx, taskID, p.ImportID, resultJSON); err != nil {
		slog.Error("completing job failed", "task_id", taskID, "error", err)
	}
}
