// Package model defines the data types that flow through the import pipeline:
// rows, mapping configuration, lineage records, and the operator variants
// used by the transformer and mapper.
package model

// Row is an ordered source-column-name -> raw-value record plus the 1-indexed
// row number it had in the original file. SourceRowNumber survives every
// transformation step; when a transformation duplicates a row (explode) all
// outputs share the original number.
//
// Helper keys (prefixed with "_") are invisible to uniqueness checks and are
// stripped before insert.
type Row struct {
	Values          map[string]string `json:"values"`
	SourceRowNumber int               `json:"source_row_number"`
}

// Clone returns a deep copy of the row so pipeline stages can mutate their
// own copy without racing with a sibling produced by the same explode.
func (r Row) Clone() Row {
	values := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{Values: values, SourceRowNumber: r.SourceRowNumber}
}

// IsHelperKey reports whether a column name is a pipeline-internal helper
// column, invisible to uniqueness checks and stripped before insert.
func IsHelperKey(key string) bool {
	return len(key) > 0 && key[0] == '_'
}

// VisibleColumns returns the row's column names excluding helper keys, in no
// particular order.
func (r Row) VisibleColumns() []string {
	cols := make([]string, 0, len(r.Values))
	for k := range r.Values {
		if !IsHelperKey(k) {
			cols = append(cols, k)
		}
	}
	return cols
}
