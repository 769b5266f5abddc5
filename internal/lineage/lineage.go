// Package lineage creates dynamically-typed target tables and implements
// cascade undo. Every table it creates carries the four metadata
// columns: _import_id, _imported_at, _source_row_number,
// _corrections_applied, plus a B-tree index on _import_id.
//
// The only non-trivial relationship in this system is
// import_history <- data_row._import_id (referential, one-to-many,
// cascading). It is implemented as a foreign key; this package exposes it
// as a relation, never as an in-memory graph.
package lineage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rowforge/ingest/internal/model"
	"github.com/rowforge/ingest/internal/sqlident"
	"github.com/rowforge/ingest/internal/store"
)

// MetadataColumns are appended to every dynamically created table, in
// order, after the declared columns.
var MetadataColumns = []string{"_import_id", "_imported_at", "_source_row_number", "_corrections_applied"}

// Store creates and undoes imports against dynamically created tables.
type Store struct {
	db *store.Store
}

// New returns a lineage Store backed by the given persistence layer.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// EnsureTable creates schema.TableName if it does not already exist, with
// the declared columns plus the four metadata columns, the FK to
// import_history with ON DELETE CASCADE, and a B-tree index on
// _import_id. Reserved names are suffixed by the caller before this point;
// this function trusts the name it's given is already sanitized.
func (s *Store) EnsureTable(ctx context.Context, schema model.TableSchema) error {
	quotedTable := sqlident.Quote(schema.TableName)

	var cols []string
	for _, c := range schema.Columns {
		sqlType := columnSQLType(c.Type)
		nullClause := "NOT NULL"
		if c.Nullable {
			nullClause = ""
		}
		cols = append(cols, fmt.Sprintf("%s %s %s", sqlident.Quote(c.Name), sqlType, nullClause))
	}

	cols = append(cols,
		`"_import_id" uuid NOT NULL`,
		`"_imported_at" timestamptz NOT NULL DEFAULT now()`,
		`"_source_row_number" integer NOT NULL`,
		`"_corrections_applied" jsonb`,
	)

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s, FOREIGN KEY ("_import_id") REFERENCES import_history(import_id) ON DELETE CASCADE)`,
		quotedTable, strings.Join(cols, ", "))

	if _, err := s.db.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("lineage: create table %s: %w", schema.TableName, err)
	}

	indexName := sqlident.Quote("idx_" + schema.TableName + "_import_id")
	indexDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ("_import_id")`, indexName, quotedTable)
	if _, err := s.db.Pool.Exec(ctx, indexDDL); err != nil {
		return fmt.Errorf("lineage: create index on %s: %w", schema.TableName, err)
	}

	return s.db.RegisterTable(ctx, schema)
}

func columnSQLType(t model.SQLType) string {
	switch t {
	case model.TypeInteger:
		return "bigint"
	case model.TypeDecimal:
		return "numeric"
	case model.TypeTimestamp:
		return "timestamp"
	default:
		return "varchar(255)"
	}
}

// Undo deletes the import_history row for importID; the FK's ON DELETE
// CASCADE removes exactly the data rows it produced, and nothing else.
// Returns the number of data rows removed, counted before the cascade
// actually fires.
func (s *Store) Undo(ctx context.Context, importID uuid.UUID, tableName string) (int64, error) {
	quotedTable := sqlident.Quote(tableName)

	count, err := s.db.CountRowsForImport(ctx, quotedTable, importID)
	if err != nil {
		return 0, fmt.Errorf("lineage: count rows for import %s: %w", importID, err)
	}

	if _, err := s.db.DeleteImportHistory(ctx, importID); err != nil {
		return 0, fmt.Errorf("lineage: delete import_history %s: %w", importID, err)
	}

	return count, nil
}
