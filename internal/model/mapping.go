package model

// DuplicateCheck controls the Dedup Engine's behavior for one import.
type DuplicateCheck struct {
	Enabled             bool     `json:"enabled"`
	CheckFileLevel      bool     `json:"check_file_level"`
	UniquenessColumns   []string `json:"uniqueness_columns,omitempty"`
	AllowFileLevelRetry bool     `json:"allow_file_level_retry"`
	ForceImport         bool     `json:"force_import"`
}

// TransformationRules is the ordered transformation program for one import:
// row operators run before deduplication and mapping, column operators run
// per-column during mapping.
type TransformationRules struct {
	RowTransformations    []RowOp    `json:"row_transformations,omitempty"`
	ColumnTransformations []ColumnOp `json:"column_transformations,omitempty"`
}

// MappingConfig is the user-supplied or Analyzer-produced description of how
// one file maps onto one target table.
type MappingConfig struct {
	TableName      string              `json:"table_name"`
	DBSchema       TableSchema         `json:"db_schema"`
	Mappings       map[string]string   `json:"mappings"` // target_column -> source_column_name
	Rules          TransformationRules `json:"rules,omitempty"`
	DuplicateCheck DuplicateCheck      `json:"duplicate_check"`
}

// SourceColumn returns the source column name mapped to a target column, or
// "" if the target column is unmapped (it then defaults to NULL).
func (m MappingConfig) SourceColumn(targetColumn string) string {
	return m.Mappings[targetColumn]
}
