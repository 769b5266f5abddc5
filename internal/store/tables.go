package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rowforge/ingest/internal/model"
)

// schemaJSON is the persisted representation of a TableSchema's columns.
type schemaJSON struct {
	Columns []model.ColumnSchema `json:"columns"`
}

// RegisterTable records a newly created dynamic table's declared schema in
// table_metadata, the lineage store's own bookkeeping table.
func (s *Store) RegisterTable(ctx context.Context, schema model.TableSchema) error {
	body, err := json.Marshal(schemaJSON{Columns: schema.Columns})
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO table_metadata (table_name, db_schema)
		VALUES ($1, $2)
		ON CONFLICT (table_name) DO UPDATE SET db_schema = EXCLUDED.db_schema`,
		schema.TableName, body)
	return err
}

// GetTableSchema returns the declared schema for a previously registered
// dynamic table, or ok=false if it has never been created.
func (s *Store) GetTableSchema(ctx context.Context, tableName string) (model.TableSchema, bool, error) {
	var body []byte
	err := s.Pool.QueryRow(ctx, `SELECT db_schema FROM table_metadata WHERE table_name = $1`, tableName).Scan(&body)
	if err != nil {
		return model.TableSchema{}, false, nil
	}
	var sj schemaJSON
	if err := json.Unmarshal(body, &sj); err != nil {
		return model.TableSchema{}, false, err
	}
	return model.TableSchema{TableName: tableName, Columns: sj.Columns}, true, nil
}

// ListTables returns every registered dynamic table name, used by the Query
// Validator's table-existence check and the GET /tables endpoint.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT table_name FROM table_metadata ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableStats summarizes a dynamic table for the stats endpoint.
type TableStats struct {
	RowCount     int64      `json:"row_count"`
	ImportCount  int64      `json:"import_count"`
	LastImportAt *time.Time `json:"last_import_at,omitempty"`
}

// GetTableStats aggregates row count, distinct import count, and the most
// recent insert time for one dynamic table.
func (s *Store) GetTableStats(ctx context.Context, quotedTable string) (TableStats, error) {
	var stats TableStats
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT _import_id), max(_imported_at)
		FROM `+quotedTable).Scan(&stats.RowCount, &stats.ImportCount, &stats.LastImportAt)
	return stats, err
}
