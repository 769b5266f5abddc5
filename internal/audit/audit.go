// Package audit records every mutating operation against the system:
// import start/complete/fail, rollback, and table reset. Entries persist
// through internal/store's plain-pgx idiom.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/ingest/internal/store"
)

// Action identifies the kind of mutating operation being recorded.
type Action string

const (
	ActionImportStart    Action = "import_start"
	ActionImportComplete Action = "import_complete"
	ActionImportFail     Action = "import_fail"
	ActionRollback       Action = "rollback"
	ActionTableReset     Action = "table_reset"
)

// Severity grades an entry's blast radius on a
// low/medium/high/critical scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func severityFor(action Action) Severity {
	switch action {
	case ActionRollback:
		return SeverityHigh
	case ActionTableReset:
		return SeverityCritical
	case ActionImportFail:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Entry is one audit log row.
type Entry struct {
	ID           uuid.UUID
	Action       Action
	Severity     Severity
	TableName    string
	ImportID     *uuid.UUID
	IPAddress    string
	RowsAffected int
	Reason       string
	Details      map[string]any
	CreatedAt    time.Time
}

// Log persists an audit entry backed by the given store.
type Log struct {
	db *store.Store
}

// New returns a Log backed by the given persistence layer.
func New(db *store.Store) *Log {
	return &Log{db: db}
}

// Params describes one audit entry to record.
type Params struct {
	Action       Action
	TableName    string
	ImportID     *uuid.UUID
	IPAddress    string
	RowsAffected int
	Reason       string
	Details      map[string]any
}

// Record writes one audit entry, grading its severity from the action
// (mutating-operation audit trail).
func (l *Log) Record(ctx context.Context, p Params) error {
	var detailsJSON []byte
	if p.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(p.Details)
		if err != nil {
			detailsJSON = nil
		}
	}

	_, err := l.db.Pool.Exec(ctx, `
		INSERT INTO audit_log
			(id, action, severity, table_name, import_id, ip_address, rows_affected, reason, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		uuid.New(), string(p.Action), string(severityFor(p.Action)), p.TableName, p.ImportID,
		p.IPAddress, p.RowsAffected, p.Reason, detailsJSON)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Filter narrows a List/Export query.
type Filter struct {
	TableName string
	Action    Action
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// DefaultLimit bounds unpaginated List calls.
const DefaultLimit = 100

// List returns matching audit entries, most recent first.
func (l *Log) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	start := f.StartTime
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	end := f.EndTime
	if end.IsZero() {
		end = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := l.db.Pool.Query(ctx, `
		SELECT id, action, severity, table_name, import_id, ip_address, rows_affected, reason, details, created_at
		FROM audit_log
		WHERE ($1 = '' OR table_name = $1)
		  AND ($2 = '' OR action = $2)
		  AND created_at BETWEEN $3 AND $4
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		f.TableName, string(f.Action), start, end, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportCSV renders matching entries as CSV, for compliance/reporting
// download.
func (l *Log) ExportCSV(ctx context.Context, f Filter) ([]byte, error) {
	f.Limit = 1_000_000
	entries, err := l.List(ctx, f)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"ID", "Action", "Severity", "Table", "Import ID", "IP Address", "Rows Affected", "Reason", "Created At"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}

	for _, e := range entries {
		importID := ""
		if e.ImportID != nil {
			importID = e.ImportID.String()
		}
		row := []string{
			e.ID.String(), string(e.Action), string(e.Severity), e.TableName, importID,
			e.IPAddress, fmt.Sprintf("%d", e.RowsAffected), e.Reason, e.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var e Entry
	var detailsJSON []byte
	var action, severity string
	err := rows.Scan(&e.ID, &action, &severity, &e.TableName, &e.ImportID,
		&e.IPAddress, &e.RowsAffected, &e.Reason, &detailsJSON, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Action = Action(action)
	e.Severity = Severity(severity)
	if detailsJSON != nil {
		_ = json.Unmarshal(detailsJSON, &e.Details)
	}
	return e, nil
}
