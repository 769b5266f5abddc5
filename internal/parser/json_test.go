package parser

import (
	"strings"
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func TestParseJSONArrayOfObjects(t *testing.T) {
	input := `[{"id":1,"name":"John"},{"id":2,"name":"Jane"}]`
	headers, rows, err := Parse(strings.NewReader(input), model.KindJSON, int64(len(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", headers)
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
	if got[0].Values["name"] != "John" || got[1].Values["name"] != "Jane" {
		t.Fatalf("unexpected values: %+v, %+v", got[0].Values, got[1].Values)
	}
	if got[0].Values["id"] != "1" {
		t.Fatalf("expected numeric id stringified as \"1\", got %q", got[0].Values["id"])
	}
}

func TestParseJSONObjectOfArrays(t *testing.T) {
	input := `{"id":[1,2],"name":["John","Jane"]}`
	headers, rows, err := Parse(strings.NewReader(input), model.KindJSON, int64(len(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", headers)
	}

	var got []model.Row
	for rows.Next() {
		got = append(got, rows.Row())
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 zipped rows, got %d", len(got))
	}
}

func TestParseJSONObjectOfArraysUnevenLengthPadsNull(t *testing.T) {
	input := `{"id":[1,2,3],"name":["John"]}`
	_, rows, err := Parse(strings.NewReader(input), model.KindJSON, int64(len(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var got []model.Row
	for rows.Next() {
		got = append(got, rows.Row())
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows (max column length), got %d", len(got))
	}
	if got[1].Values["name"] != "" {
		t.Fatalf("expected a padded missing value to stringify to empty, got %q", got[1].Values["name"])
	}
}

func TestParseJSONRejectsScalarRoot(t *testing.T) {
	_, _, err := Parse(strings.NewReader(`42`), model.KindJSON, 2)
	if err == nil {
		t.Fatalf("expected an error for a top-level JSON scalar")
	}
}
