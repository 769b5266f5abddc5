package parser

import (
	"strings"
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func TestParseCSVBasic(t *testing.T) {
	input := "id,name,age\n1,John Doe,30\n2,Jane Smith,25\n"
	headers, rows, err := Parse(strings.NewReader(input), model.KindCSV, int64(len(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := []string{"id", "name", "age"}; !equalStrings(headers, want) {
		t.Fatalf("headers = %v, want %v", headers, want)
	}

	var got []model.Row
	for rows.Next() {
		got = append(got, rows.Row())
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("unexpected row error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].SourceRowNumber != 1 || got[1].SourceRowNumber != 2 {
		t.Fatalf("expected 1-indexed source row numbers, got %d, %d", got[0].SourceRowNumber, got[1].SourceRowNumber)
	}
	if got[0].Values["name"] != "John Doe" {
		t.Fatalf("unexpected value: %+v", got[0].Values)
	}
}

func TestParseCSVRaggedRowsBackfillEmpty(t *testing.T) {
	input := "a,b,c\n1,2\n"
	_, rows, err := Parse(strings.NewReader(input), model.KindCSV, int64(len(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows.Next()
	row := rows.Row()
	if row.Values["c"] != "" {
		t.Fatalf("expected missing trailing field to default to empty string, got %q", row.Values["c"])
	}
}

func TestParseCSVEmptyFileRejected(t *testing.T) {
	_, _, err := Parse(strings.NewReader(""), model.KindCSV, 0)
	if err == nil {
		t.Fatalf("expected an error for an empty CSV file")
	}
}

func TestCleanCellStripsFormulaPrefixAndQuotes(t *testing.T) {
	cases := map[string]string{
		`="id"`:  "id",
		`=name`:  "name",
		` "age" `: "age",
		"plain":  "plain",
	}
	for in, want := range cases {
		if got := cleanCell(in); got != want {
			t.Errorf("cleanCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
