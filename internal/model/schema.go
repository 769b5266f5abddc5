package model

// SQLType is one of the four column types the schema inferrer and mapper
// produce. TIMESTAMP carries time-of-day; VARCHAR is the universal fallback.
type SQLType string

const (
	TypeInteger   SQLType = "INTEGER"
	TypeDecimal   SQLType = "DECIMAL"
	TypeTimestamp SQLType = "TIMESTAMP"
	TypeVarchar   SQLType = "VARCHAR(255)"
)

// ColumnSchema describes one target column: its declared SQL type and
// whether NULLs are allowed.
type ColumnSchema struct {
	Name     string  `json:"name"`
	Type     SQLType `json:"type"`
	Nullable bool    `json:"nullable"`
}

// TableSchema is the ordered set of declared target columns for one table,
// in insertion order (db_schema in the mapping config).
type TableSchema struct {
	TableName string         `json:"table_name"`
	Columns   []ColumnSchema `json:"columns"`
}

// ColumnByName returns the declared column and true, or the zero value and
// false if the table has no such column.
func (s TableSchema) ColumnByName(name string) (ColumnSchema, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// ColumnNames returns the declared column names in schema order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
