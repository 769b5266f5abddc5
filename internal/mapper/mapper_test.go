package mapper

import (
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func schemaOf(cols ...model.ColumnSchema) model.TableSchema {
	return model.TableSchema{TableName: "t", Columns: cols}
}

func TestMapBasicIdentity(t *testing.T) {
	cfg := model.MappingConfig{
		DBSchema: schemaOf(
			model.ColumnSchema{Name: "id", Type: model.TypeInteger},
			model.ColumnSchema{Name: "name", Type: model.TypeVarchar},
			model.ColumnSchema{Name: "age", Type: model.TypeInteger},
		),
		Mappings: map[string]string{"id": "id", "name": "name", "age": "age"},
	}
	rows := []model.Row{
		{SourceRowNumber: 1, Values: map[string]string{"id": "1", "name": "John Doe", "age": "30"}},
		{SourceRowNumber: 2, Values: map[string]string{"id": "2", "name": "Jane Smith", "age": "25"}},
	}

	out, err := Map(rows, cfg)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 mapped rows, got %d", len(out))
	}
	if out[0].Values["id"] != int64(1) || out[0].Values["age"] != int64(30) {
		t.Fatalf("unexpected coerced values: %+v", out[0].Values)
	}
	if len(out[0].Corrections) != 0 {
		t.Fatalf("no corrections expected for clean input, got %+v", out[0].Corrections)
	}
}

// "30.0" mapped to INTEGER stores 30 and records a
// type_coercion correction.
func TestMapIntegerFromFloatString(t *testing.T) {
	cfg := model.MappingConfig{
		DBSchema: schemaOf(model.ColumnSchema{Name: "age", Type: model.TypeInteger}),
		Mappings: map[string]string{"age": "age"},
	}
	rows := []model.Row{{SourceRowNumber: 1, Values: map[string]string{"age": "30.0"}}}

	out, err := Map(rows, cfg)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if out[0].Values["age"] != int64(30) {
		t.Fatalf("expected coerced age 30, got %v", out[0].Values["age"])
	}
	corr, ok := out[0].Corrections["age"]
	if !ok {
		t.Fatalf("expected a correction to be recorded for 30.0 -> 30")
	}
	if corr.Before != "30.0" || corr.CorrectionType != model.CorrectionTypeCoercion || corr.TargetType != string(model.TypeInteger) {
		t.Fatalf("unexpected correction: %+v", corr)
	}
}

// A M/D/YYYY h:MM AM/PM timestamp coerces to ISO 8601
// with a source_format correction.
func TestMapTimestampCoercion(t *testing.T) {
	cfg := model.MappingConfig{
		DBSchema: schemaOf(model.ColumnSchema{Name: "ts", Type: model.TypeTimestamp}),
		Mappings: map[string]string{"ts": "ts"},
	}
	rows := []model.Row{{SourceRowNumber: 1, Values: map[string]string{"ts": "10/09/2025 8:11 PM"}}}

	out, err := Map(rows, cfg)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if out[0].Values["ts"] != "2025-10-09T20:11:00" {
		t.Fatalf("expected ISO 8601 timestamp, got %v", out[0].Values["ts"])
	}
	corr, ok := out[0].Corrections["ts"]
	if !ok || corr.SourceFormat != "%m/%d/%Y %I:%M %p" {
		t.Fatalf("expected a source_format correction, got %+v", corr)
	}
}

func TestMapRejectsNonNullableOnCoercionFailure(t *testing.T) {
	cfg := model.MappingConfig{
		DBSchema: schemaOf(model.ColumnSchema{Name: "age", Type: model.TypeInteger, Nullable: false}),
		Mappings: map[string]string{"age": "age"},
	}
	rows := []model.Row{{SourceRowNumber: 1, Values: map[string]string{"age": "not-a-number"}}}

	out, err := Map(rows, cfg)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !out[0].Rejected {
		t.Fatalf("expected row to be rejected when coercion yields NULL for a non-nullable column")
	}
}

func TestMapUnmappedColumnDefaultsToNull(t *testing.T) {
	cfg := model.MappingConfig{
		DBSchema: schemaOf(model.ColumnSchema{Name: "id", Type: model.TypeInteger}, model.ColumnSchema{Name: "extra", Type: model.TypeVarchar, Nullable: true}),
		Mappings: map[string]string{"id": "id"},
	}
	rows := []model.Row{{SourceRowNumber: 1, Values: map[string]string{"id": "1"}}}

	out, err := Map(rows, cfg)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if out[0].Values["extra"] != nil {
		t.Fatalf("unmapped declared column should default to NULL, got %v", out[0].Values["extra"])
	}
}
