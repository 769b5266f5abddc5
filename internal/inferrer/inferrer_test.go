package inferrer

import (
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func rows(values ...map[string]string) []model.Row {
	out := make([]model.Row, len(values))
	for i, v := range values {
		out[i] = model.Row{SourceRowNumber: i + 1, Values: v}
	}
	return out
}

func colType(t *testing.T, schema model.TableSchema, name string) model.SQLType {
	t.Helper()
	col, ok := schema.ColumnByName(name)
	if !ok {
		t.Fatalf("column %q not found in inferred schema", name)
	}
	return col.Type
}

func TestInferIntegerColumn(t *testing.T) {
	schema := Infer("users", rows(
		map[string]string{"id": "1", "name": "John Doe", "age": "30"},
		map[string]string{"id": "2", "name": "Jane Smith", "age": "25"},
	))
	if colType(t, schema, "id") != model.TypeInteger {
		t.Fatalf("expected id to infer INTEGER")
	}
	if colType(t, schema, "age") != model.TypeInteger {
		t.Fatalf("expected age to infer INTEGER")
	}
	if colType(t, schema, "name") != model.TypeVarchar {
		t.Fatalf("expected name to infer VARCHAR fallback")
	}
}

func TestInferDecimalRequiresNonIntegerValue(t *testing.T) {
	schema := Infer("t", rows(
		map[string]string{"price": "10"},
		map[string]string{"price": "12.50"},
	))
	if colType(t, schema, "price") != model.TypeDecimal {
		t.Fatalf("mixed integer/decimal values should infer DECIMAL")
	}
}

func TestInferAllIntegersStaysInteger(t *testing.T) {
	schema := Infer("t", rows(
		map[string]string{"qty": "1"},
		map[string]string{"qty": "2"},
	))
	if colType(t, schema, "qty") != model.TypeInteger {
		t.Fatalf("all-integer column should stay INTEGER, not widen to DECIMAL")
	}
}

func TestInferTimestampColumn(t *testing.T) {
	schema := Infer("t", rows(
		map[string]string{"created": "2025-10-09"},
		map[string]string{"created": "2025-10-10 08:11:00"},
	))
	if colType(t, schema, "created") != model.TypeTimestamp {
		t.Fatalf("expected created to infer TIMESTAMP")
	}
}

func TestInferNullableWhenAnyEmpty(t *testing.T) {
	schema := Infer("t", rows(
		map[string]string{"nickname": "Al"},
		map[string]string{"nickname": ""},
	))
	col, _ := schema.ColumnByName("nickname")
	if !col.Nullable {
		t.Fatalf("expected column with an empty sampled value to be nullable")
	}
}

func TestInferSanitizesTableAndColumnNames(t *testing.T) {
	schema := Infer("users", rows(map[string]string{"First Name": "Ann"}))
	if schema.TableName != "users_user_data" {
		t.Fatalf("reserved table name %q should be suffixed, got %q", "users", schema.TableName)
	}
	if _, ok := schema.ColumnByName("first_name"); !ok {
		t.Fatalf("expected sanitized column name first_name")
	}
}

func TestParseTimestampPriorityOrder(t *testing.T) {
	_, layout, ok := ParseTimestamp("10/09/2025 8:11 PM")
	if !ok {
		t.Fatalf("expected M/D/YYYY h:MM AM/PM to parse")
	}
	if layout != "1/2/2006 3:04 PM" {
		t.Fatalf("expected the M/D/YYYY h:MM AM/PM layout to win over D/M/YYYY, got %q", layout)
	}
}
