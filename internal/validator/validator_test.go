package validator

import "testing"

func schema() Schema {
	return Schema{Tables: map[string][]string{
		"clients": {"first_name", "last_name", "seniority"},
		"orders":  {"id", "total"},
	}}
}

func TestValidateAllowsPlainSelect(t *testing.T) {
	res := Validate(`SELECT id, total FROM orders`, schema())
	if !res.Allowed {
		t.Fatalf("expected plain SELECT to be allowed, got: %s", res.Message)
	}
}

func TestValidateRejectsProtectedTable(t *testing.T) {
	res := Validate(`SELECT * FROM import_history`, schema())
	if res.Allowed {
		t.Fatalf("expected protected table query to be rejected")
	}
}

func TestValidateRejectsProtectedTableSchemaQualified(t *testing.T) {
	res := Validate(`SELECT * FROM public.users`, schema())
	if res.Allowed {
		t.Fatalf("expected schema-qualified protected table query to be rejected")
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	res := Validate(`DELETE FROM orders WHERE id = 1`, schema())
	if res.Allowed {
		t.Fatalf("expected non-SELECT statement to be rejected from the NL pathway")
	}
}

// DISTINCT with an ORDER BY CASE over a column absent from the select list.
func TestValidateRejectsDistinctOrderByMismatch(t *testing.T) {
	sql := `SELECT DISTINCT "first_name","last_name" FROM "clients" ORDER BY CASE WHEN "seniority"='C-Suite' THEN 1 ELSE 2 END`
	res := Validate(sql, schema())
	if res.Allowed {
		t.Fatalf("expected ORDER BY referencing a column outside the DISTINCT select list to be rejected")
	}
}

func TestValidateAllowsDistinctWhenOrderByColumnSelected(t *testing.T) {
	sql := `SELECT DISTINCT first_name, last_name FROM clients ORDER BY first_name`
	res := Validate(sql, schema())
	if !res.Allowed {
		t.Fatalf("expected DISTINCT with matching ORDER BY column to be allowed, got: %s", res.Message)
	}
}

func TestValidateRejectsUnknownTableWithSuggestion(t *testing.T) {
	res := Validate(`SELECT * FROM orderz`, schema())
	if res.Allowed {
		t.Fatalf("expected unknown table to be rejected")
	}
	if res.Message == "" {
		t.Fatalf("expected a suggestion message")
	}
}

func TestValidateRejectsUnknownColumnWithSuggestion(t *testing.T) {
	res := Validate(`SELECT id, totl FROM orders`, schema())
	if res.Allowed {
		t.Fatalf("expected unknown column to be rejected")
	}
	if res.Message == "" {
		t.Fatalf("expected a suggestion message")
	}
}

func TestValidateAllowsKnownColumnInWhereClause(t *testing.T) {
	res := Validate(`SELECT id FROM orders WHERE total > 100`, schema())
	if !res.Allowed {
		t.Fatalf("expected known WHERE column to be allowed, got: %s", res.Message)
	}
}

func TestValidateRejectsUnknownColumnInWhereClause(t *testing.T) {
	res := Validate(`SELECT id FROM orders WHERE bogus > 100`, schema())
	if res.Allowed {
		t.Fatalf("expected unknown WHERE column to be rejected")
	}
}

func TestValidateEmptyQueryRejected(t *testing.T) {
	res := Validate("", schema())
	if res.Allowed {
		t.Fatalf("expected empty query to be rejected")
	}
}
