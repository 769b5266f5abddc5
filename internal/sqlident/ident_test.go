package sqlident

import "testing"

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"First Name":  "first_name",
		"  spaced  ":  "spaced",
		"2024_Sales":  "_2024_sales",
		"a-b.c":       "a_b_c",
		"___":         "column",
		"already_ok":  "already_ok",
		"Order#Total": "order_total",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeTableNameSuffixesReserved(t *testing.T) {
	got := SanitizeTableName("users")
	if got != "users_user_data" {
		t.Fatalf("reserved table name %q was not suffixed, got %q", "users", got)
	}
}

func TestSanitizeTableNamePassesThroughOrdinary(t *testing.T) {
	got := SanitizeTableName("orders")
	if got != "orders" {
		t.Fatalf("ordinary table name should pass through unchanged, got %q", got)
	}
}

func TestQuoteEscapesDoubleQuotes(t *testing.T) {
	got := Quote(`weird"name`)
	want := `"weird""name"`
	if got != want {
		t.Fatalf("Quote(%q) = %q, want %q", `weird"name`, got, want)
	}
}

func TestQuoteQualified(t *testing.T) {
	if got := QuoteQualified("public", "orders"); got != `"public"."orders"` {
		t.Fatalf("QuoteQualified = %q", got)
	}
	if got := QuoteQualified("", "orders"); got != `"orders"` {
		t.Fatalf("QuoteQualified with empty schema = %q", got)
	}
}
