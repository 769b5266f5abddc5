// Package sqlident sanitizes and quotes SQL identifiers for dynamically
// created tables and columns. Table and column names are sanitized to match
// [a-zA-Z_][a-zA-Z0-9_]*; collisions with system-reserved names trigger
// suffixing.
package sqlident

import (
	"regexp"
	"strings"

	"github.com/rowforge/ingest/internal/model"
)

var (
	invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	leadingDigit = regexp.MustCompile(`^[0-9]`)
)

// Sanitize converts an arbitrary display name into a valid unquoted SQL
// identifier: spaces and punctuation collapse to underscores, the result is
// lowercased, and a leading digit is prefixed with an underscore.
func Sanitize(name string) string {
	s := strings.TrimSpace(name)
	s = invalidChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "column"
	}
	if leadingDigit.MatchString(s) {
		s = "_" + s
	}
	return strings.ToLower(s)
}

// SanitizeTableName sanitizes a candidate table name and, if it collides
// with a protected system table, suffixes it (e.g. "users" -> "users_user_data").
func SanitizeTableName(name string) string {
	s := Sanitize(name)
	if model.IsProtected(s) {
		s += "_user_data"
	}
	return s
}

// Quote quotes a SQL identifier to prevent injection when interpolated into
// dynamically built DDL/DML. Always quote even already-sanitized identifiers:
// PostgreSQL reserved words (e.g. "order", "group") are otherwise rejected.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes a schema-qualified identifier, e.g. "public"."users".
func QuoteQualified(schema, name string) string {
	if schema == "" {
		return Quote(name)
	}
	return Quote(schema) + "." + Quote(name)
}
