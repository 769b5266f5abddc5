package transform

import (
	"testing"

	"github.com/rowforge/ingest/internal/model"
)

func row(n int, values map[string]string) model.Row {
	return model.Row{SourceRowNumber: n, Values: values}
}

// Exploded children share the parent's source_row_number.
func TestExplodeColumnsPreservesSourceRowNumber(t *testing.T) {
	rows := []model.Row{row(7, map[string]string{"email1": "a@x.com", "email2": "b@x.com"})}
	op := model.RowOp{Kind: model.OpExplodeColumns, Explode: &model.ExplodeColumnsOpts{
		Sources: []string{"email1", "email2"}, Target: "email",
	}}

	out, err := Apply(rows, []model.RowOp{op})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 exploded rows, got %d", len(out))
	}
	for _, r := range out {
		if r.SourceRowNumber != 7 {
			t.Fatalf("exploded row lost source_row_number: got %d", r.SourceRowNumber)
		}
	}
}

func TestExplodeColumnsDropsSourcesByDefault(t *testing.T) {
	rows := []model.Row{row(1, map[string]string{"a": "x", "b": "y"})}
	op := model.RowOp{Kind: model.OpExplodeColumns, Explode: &model.ExplodeColumnsOpts{
		Sources: []string{"a", "b"}, Target: "merged",
	}}
	out, _ := Apply(rows, []model.RowOp{op})
	for _, r := range out {
		if _, ok := r.Values["a"]; ok {
			t.Fatalf("source column should be dropped unless include_original is set")
		}
	}
}

func TestExplodeListRowsSplitsOnDefaultDelimiters(t *testing.T) {
	rows := []model.Row{row(3, map[string]string{"tags": "red,green;blue"})}
	op := model.RowOp{Kind: model.OpExplodeListRows, ExplodeList: &model.ExplodeListRowsOpts{
		Source: "tags", Target: "tag",
	}}
	out, err := Apply(rows, []model.RowOp{op})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 rows from splitting on , and ;, got %d", len(out))
	}
	for _, r := range out {
		if r.SourceRowNumber != 3 {
			t.Fatalf("exploded list row lost source_row_number")
		}
	}
}

func TestFilterRowsIncludeExclude(t *testing.T) {
	rows := []model.Row{
		row(1, map[string]string{"status": "active"}),
		row(2, map[string]string{"status": "inactive"}),
		row(3, map[string]string{"status": "archived"}),
	}
	op := model.RowOp{Kind: model.OpFilterRows, Filter: &model.FilterRowsOpts{
		IncludeRegex: "^active|inactive$",
		ExcludeRegex: "inactive",
		Columns:      []string{"status"},
	}}
	out, err := Apply(rows, []model.RowOp{op})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 || out[0].SourceRowNumber != 1 {
		t.Fatalf("expected only row 1 to survive include+exclude filter, got %+v", out)
	}
}

func TestRegexReplaceCapturesNamedGroupToOutput(t *testing.T) {
	rows := []model.Row{row(1, map[string]string{"phone": "555-123-4567"})}
	op := model.RowOp{Kind: model.OpRegexReplace, Regex: &model.RegexReplaceOpts{
		Pattern:     `(?P<area>\d{3})-(\d{3})-(\d{4})`,
		Columns:     []string{"phone"},
		Replacement: "$1$2$3",
		Outputs:     map[string]string{"area_code": "area"},
	}}
	out, err := Apply(rows, []model.RowOp{op})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out[0].Values["area_code"] != "555" {
		t.Fatalf("expected captured area code 555, got %q", out[0].Values["area_code"])
	}
	if out[0].Values["phone"] != "5551234567" {
		t.Fatalf("expected replacement applied to phone, got %q", out[0].Values["phone"])
	}
}

func TestRegexReplaceSkipOnNoMatchLeavesValue(t *testing.T) {
	rows := []model.Row{row(1, map[string]string{"code": "abc"})}
	op := model.RowOp{Kind: model.OpRegexReplace, Regex: &model.RegexReplaceOpts{
		Pattern:       `^\d+$`,
		Columns:       []string{"code"},
		SkipOnNoMatch: true,
	}}
	out, _ := Apply(rows, []model.RowOp{op})
	if out[0].Values["code"] != "abc" {
		t.Fatalf("skip_on_no_match should leave the value untouched, got %q", out[0].Values["code"])
	}
}

func TestConcatColumnsSkipNulls(t *testing.T) {
	rows := []model.Row{row(1, map[string]string{"first": "Ann", "middle": "", "last": "Lee"})}
	op := model.RowOp{Kind: model.OpConcatColumns, Concat: &model.ConcatColumnsOpts{
		Sources:   []string{"first", "middle", "last"},
		Target:    "full_name",
		Separator: " ",
		SkipNulls: true,
	}}
	out, err := Apply(rows, []model.RowOp{op})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out[0].Values["full_name"] != "Ann Lee" {
		t.Fatalf("expected empty middle name to be skipped, got %q", out[0].Values["full_name"])
	}
}
