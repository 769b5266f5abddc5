package lineage

import (
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func TestColumnSQLTypeMapping(t *testing.T) {
	cases := map[model.SQLType]string{
		model.TypeInteger:   "bigint",
		model.TypeDecimal:   "numeric",
		model.TypeTimestamp: "timestamp",
		model.TypeVarchar:   "varchar(255)",
	}
	for sqlType, want := range cases {
		if got := columnSQLType(sqlType); got != want {
			t.Errorf("columnSQLType(%v) = %q, want %q", sqlType, got, want)
		}
	}
}

func TestMetadataColumnsOrder(t *testing.T) {
	want := []string{"_import_id", "_imported_at", "_source_row_number", "_corrections_applied"}
	if len(MetadataColumns) != len(want) {
		t.Fatalf("expected %d metadata columns, got %d", len(want), len(MetadataColumns))
	}
	for i, name := range want {
		if MetadataColumns[i] != name {
			t.Fatalf("metadata column %d: got %q, want %q", i, MetadataColumns[i], name)
		}
	}
}
