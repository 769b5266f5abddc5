// Package mapper renames source columns to target columns and coerces raw
// string values to their declared SQL types, recording corrections for any
// value that was actually altered.
package mapper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rowforge/ingest/internal/inferrer"
	"github.com/rowforge/ingest/internal/model"
)

// MappedRow is one target record plus the per-field corrections applied
// while producing it.
type MappedRow struct {
	SourceRowNumber int
	Values          map[string]any
	Corrections     map[string]model.Correction
	Rejected        bool
	RejectReason    string
}

// Map produces a target record for each transformed row: look up the source
// column from mappings, apply any column-level transform, then coerce to
// the declared type. Unmapped declared columns default to NULL; source
// columns not referenced are discarded.
func Map(rows []model.Row, cfg model.MappingConfig) ([]MappedRow, error) {
	colOps, err := groupColumnOps(cfg.Rules.ColumnTransformations)
	if err != nil {
		return nil, err
	}

	out := make([]MappedRow, len(rows))
	for i, row := range rows {
		out[i] = mapOne(row, cfg, colOps)
	}
	return out, nil
}

func groupColumnOps(ops []model.ColumnOp) (map[string][]model.ColumnOp, error) {
	byTarget := make(map[string][]model.ColumnOp)
	for _, op := range ops {
		byTarget[op.Target] = append(byTarget[op.Target], op)
	}
	return byTarget, nil
}

func mapOne(row model.Row, cfg model.MappingConfig, colOps map[string][]model.ColumnOp) MappedRow {
	result := MappedRow{
		SourceRowNumber: row.SourceRowNumber,
		Values:          make(map[string]any, len(cfg.DBSchema.Columns)),
		Corrections:     make(map[string]model.Correction),
	}

	for _, col := range cfg.DBSchema.Columns {
		raw := ""
		if src := cfg.SourceColumn(col.Name); src != "" {
			raw = row.Values[src]
		}

		raw = applyColumnOps(raw, row, colOps[col.Name])

		value, correction, err := CoerceToType(raw, col.Type)
		if err != nil {
			if !col.Nullable {
				result.Rejected = true
				result.RejectReason = fmt.Sprintf("column %s: %v", col.Name, err)
				return result
			}
			result.Values[col.Name] = nil
			continue
		}

		if value == nil && !col.Nullable && strings.TrimSpace(raw) != "" {
			result.Rejected = true
			result.RejectReason = fmt.Sprintf("column %s: coercion produced NULL for non-nullable column", col.Name)
			return result
		}

		result.Values[col.Name] = value
		if correction != nil {
			result.Corrections[col.Name] = *correction
		}
	}

	return result
}

// applyColumnOps runs the column-level transforms (regex_replace,
// merge_columns, explode_list_column) targeting one column, in order.
func applyColumnOps(raw string, row model.Row, ops []model.ColumnOp) string {
	value := raw
	for _, op := range ops {
		switch op.Kind {
		case model.ColOpRegexReplace:
			if op.Regex != nil {
				value = columnRegexReplace(value, op.Regex)
			}
		case model.ColOpMergeColumns:
			if op.Merge != nil {
				value = mergeColumns(row, op.Merge)
			}
		case model.ColOpExplodeListColumn:
			if op.List != nil {
				value = firstListElement(row.Values[op.List.Source], op.List.Delimiters)
			}
		}
	}
	return value
}

func columnRegexReplace(value string, o *model.RegexReplaceOpts) string {
	re, err := regexp.Compile(o.Pattern)
	if err != nil {
		return value
	}
	if !re.MatchString(value) {
		if o.SkipOnNoMatch {
			return value
		}
		return ""
	}
	return re.ReplaceAllString(value, o.Replacement)
}

func mergeColumns(row model.Row, o *model.MergeColumnsOpts) string {
	parts := make([]string, 0, len(o.Sources))
	for _, src := range o.Sources {
		v := row.Values[src]
		if v == "" && o.SkipNulls {
			continue
		}
		if v == "" {
			v = o.NullReplacement
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, o.Separator)
}

func firstListElement(raw string, delims []string) string {
	if len(delims) == 0 {
		delims = []string{",", ";"}
	}
	joined := strings.Join(delims, "")
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return strings.ContainsRune(joined, r)
	})
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}

// CoerceToType coerces a raw string to the declared type. It returns the
// coerced value (nil for NULL), a non-nil Correction only when the stored
// value differs from the raw input, and an error only for a condition the
// caller must treat as a hard rejection (currently unused -- invalid
// non-null values coerce to NULL-with-correction rather than erroring; the
// error return exists for forward compatibility with stricter coercions).
func CoerceToType(raw string, t model.SQLType) (any, *model.Correction, error) {
	trimmed := strings.TrimSpace(raw)

	switch t {
	case model.TypeInteger:
		return coerceInteger(raw, trimmed)
	case model.TypeDecimal:
		return coerceDecimal(raw, trimmed)
	case model.TypeTimestamp:
		return coerceTimestamp(raw, trimmed)
	default: // VARCHAR/TEXT
		if trimmed == "" {
			return nil, nil, nil
		}
		return trimmed, nil, nil
	}
}

func coerceInteger(raw, trimmed string) (any, *model.Correction, error) {
	if trimmed == "" {
		return nil, nil, nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n, nil, nil
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && f == float64(int64(f)) {
		n := int64(f)
		return n, &model.Correction{
			Before:         raw,
			After:          n,
			CorrectionType: model.CorrectionTypeCoercion,
			TargetType:     string(model.TypeInteger),
		}, nil
	}
	return nil, &model.Correction{
		Before:         raw,
		After:          nil,
		CorrectionType: model.CorrectionTypeCoercion,
		TargetType:     string(model.TypeInteger),
	}, nil
}

func coerceDecimal(raw, trimmed string) (any, *model.Correction, error) {
	if trimmed == "" {
		return nil, nil, nil
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f, nil, nil
	}
	return nil, &model.Correction{
		Before:         raw,
		After:          nil,
		CorrectionType: model.CorrectionTypeCoercion,
		TargetType:     string(model.TypeDecimal),
	}, nil
}

func coerceTimestamp(raw, trimmed string) (any, *model.Correction, error) {
	if trimmed == "" {
		return nil, nil, nil
	}
	t, layout, ok := inferrer.ParseTimestamp(trimmed)
	if !ok {
		return nil, &model.Correction{
			Before:         raw,
			After:          nil,
			CorrectionType: model.CorrectionDatetimeStd,
			TargetType:     string(model.TypeTimestamp),
		}, nil
	}
	iso := t.Format("2006-01-02T15:04:05")
	if iso == trimmed {
		return iso, nil, nil
	}
	return iso, &model.Correction{
		Before:         raw,
		After:          iso,
		CorrectionType: model.CorrectionDatetimeStd,
		SourceFormat:   inferrer.SourceFormat(layout),
	}, nil
}
