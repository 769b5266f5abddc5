package model

// ProtectedTables is the full set of operational tables the LLM may neither
// see nor reference.
var ProtectedTables = map[string]bool{
	"import_history":    true,
	"mapping_errors":    true,
	"table_metadata":    true,
	"uploaded_files":    true,
	"users":             true,
	"file_imports":      true,
	"import_jobs":       true,
	"import_duplicates": true,
	"query_messages":    true,
	"query_threads":     true,
	"llm_instructions":  true,
	"spatial_ref_sys":   true,
	"audit_log":         true,
}

// IsProtected reports whether table is a protected system table.
func IsProtected(table string) bool {
	return ProtectedTables[table]
}

// FileKind is the declared decoding format for an input file.
type FileKind string

const (
	KindCSV  FileKind = "csv"
	KindXLSX FileKind = "xlsx"
	KindXLS  FileKind = "xls"
	KindJSON FileKind = "json"
	KindXML  FileKind = "xml"
)

// ErrorType is the error taxonomy tag used in the user-visible failure
// envelope.
type ErrorType string

const (
	ErrParseError      ErrorType = "parse_error"
	ErrDuplicateFile   ErrorType = "duplicate_file"
	ErrDuplicateRow    ErrorType = "duplicate_row"
	ErrCoercionError   ErrorType = "coercion_error"
	ErrSchemaMismatch  ErrorType = "schema_mismatch"
	ErrValidationError ErrorType = "validation_error"
	ErrProtectedTable  ErrorType = "protected_table"
	ErrTimeout         ErrorType = "timeout"
	ErrInternal        ErrorType = "internal_error"
)
