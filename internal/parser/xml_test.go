package parser

import (
	"strings"
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func TestParseXMLRepeatedChildBecomesRow(t *testing.T) {
	input := `<records>
		<record id="1"><name>John</name></record>
		<record id="2"><name>Jane</name></record>
	</records>`
	headers, rows, err := Parse(strings.NewReader(input), model.KindXML, int64(len(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !equalStrings(headers, []string{"id", "name"}) {
		t.Fatalf("headers = %v, want [id name]", headers)
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
	if got[0].Values["id"] != "1" || got[0].Values["name"] != "John" {
		t.Fatalf("unexpected first row: %+v", got[0].Values)
	}
	if got[1].SourceRowNumber != 2 {
		t.Fatalf("expected second row source_row_number 2, got %d", got[1].SourceRowNumber)
	}
}

func TestParseXMLEmptyRootYieldsNoRows(t *testing.T) {
	_, rows, err := Parse(strings.NewReader(`<records></records>`), model.KindXML, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows.Next() {
		t.Fatalf("expected no rows for an empty root element")
	}
}
