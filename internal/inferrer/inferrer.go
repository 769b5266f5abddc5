// Package inferrer infers a TableSchema from a sample of parsed rows.
package inferrer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rowforge/ingest/internal/model"
	"github.com/rowforge/ingest/internal/sqlident"
)

// dateLayouts is a fixed priority order: ISO 8601 first,
// then YYYY-MM-DD[ HH:MM[:SS]], then M/D/YYYY[ h:MM AM/PM], then D/M/YYYY.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"1/2/2006",
	"2/1/2006",
}

// strftimeNames maps each layout to the strftime notation recorded as
// source_format in correction records.
var strftimeNames = map[string]string{
	time.RFC3339:          "%Y-%m-%dT%H:%M:%S%z",
	"2006-01-02T15:04:05": "%Y-%m-%dT%H:%M:%S",
	"2006-01-02 15:04:05": "%Y-%m-%d %H:%M:%S",
	"2006-01-02 15:04":    "%Y-%m-%d %H:%M",
	"2006-01-02":          "%Y-%m-%d",
	"1/2/2006 3:04 PM":    "%m/%d/%Y %I:%M %p",
	"1/2/2006 15:04":      "%m/%d/%Y %H:%M",
	"1/2/2006":            "%m/%d/%Y",
	"2/1/2006":            "%d/%m/%Y",
}

// SourceFormat renders a matched layout in strftime notation for a
// correction record, falling back to the layout itself if unknown.
func SourceFormat(layout string) string {
	if name, ok := strftimeNames[layout]; ok {
		return name
	}
	return layout
}

var integerRegex = regexp.MustCompile(`^[+-]?\d+$`)

// Infer examines each column across the sample and infers the narrowest
// type that fits every non-null value, table- and column-name-sanitizing as
// it goes.
func Infer(tableName string, sample []model.Row) model.TableSchema {
	columns := orderedColumns(sample)

	schema := model.TableSchema{
		TableName: sqlident.SanitizeTableName(tableName),
	}
	for _, col := range columns {
		values := collectColumn(sample, col)
		schema.Columns = append(schema.Columns, model.ColumnSchema{
			Name:     sqlident.Sanitize(col),
			Type:     inferType(values),
			Nullable: anyEmpty(values),
		})
	}
	return schema
}

// orderedColumns returns the column names in first-seen order across the
// sample, excluding pipeline helper columns.
func orderedColumns(sample []model.Row) []string {
	seen := make(map[string]bool)
	var order []string
	for _, row := range sample {
		for _, col := range row.VisibleColumns() {
			if !seen[col] {
				seen[col] = true
				order = append(order, col)
			}
		}
	}
	return order
}

func collectColumn(sample []model.Row, col string) []string {
	values := make([]string, 0, len(sample))
	for _, row := range sample {
		values = append(values, row.Values[col])
	}
	return values
}

func anyEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// inferType returns the narrowest SQL type that fits every non-empty value.
func inferType(values []string) model.SQLType {
	nonEmpty := nonEmptyValues(values)
	if len(nonEmpty) == 0 {
		return model.TypeVarchar
	}

	if allParseAs(nonEmpty, isInteger) {
		return model.TypeInteger
	}

	hasNonInteger := false
	if allParseAs(nonEmpty, func(s string) bool {
		if isDecimal(s) {
			if !isInteger(s) {
				hasNonInteger = true
			}
			return true
		}
		return false
	}) && hasNonInteger {
		return model.TypeDecimal
	}

	if allParseAs(nonEmpty, isTimestamp) {
		return model.TypeTimestamp
	}

	return model.TypeVarchar
}

func nonEmptyValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func allParseAs(values []string, check func(string) bool) bool {
	for _, v := range values {
		if !check(strings.TrimSpace(v)) {
			return false
		}
	}
	return true
}

func isInteger(s string) bool {
	return integerRegex.MatchString(s)
}

func isDecimal(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	return true
}

func isTimestamp(s string) bool {
	_, _, ok := ParseTimestamp(s)
	return ok
}

// ParseTimestamp tries the fixed priority list of date/time formats and
// returns the parsed time, the matched layout (used as source_format by the
// Mapper's correction record), and whether any layout matched.
func ParseTimestamp(s string) (time.Time, string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, true
		}
	}
	return time.Time{}, "", false
}
