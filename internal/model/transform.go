package model

// RowOpKind selects which row-level transformation operator a RowOp
// carries. Exactly one of RowOp's option structs is populated per Kind --
// a tagged union rather than an interface per operator, since every
// variant carries a fixed option record and none need method dispatch.
type RowOpKind string

const (
	OpExplodeColumns  RowOpKind = "explode_columns"
	OpExplodeListRows RowOpKind = "explode_list_rows"
	OpFilterRows      RowOpKind = "filter_rows"
	OpRegexReplace    RowOpKind = "regex_replace"
	OpConditional     RowOpKind = "conditional_transform"
	OpConcatColumns   RowOpKind = "concat_columns"
)

// DedupeMode controls value-collision handling for explode operators.
type DedupeMode string

const (
	DedupeNone            DedupeMode = "none"
	DedupeExact           DedupeMode = "exact"
	DedupeCaseInsensitive DedupeMode = "case_insensitive"
)

// ExplodeColumnsOpts implements explode_columns(sources[], target).
type ExplodeColumnsOpts struct {
	Sources         []string   `json:"sources"`
	Target          string     `json:"target"`
	IncludeOriginal bool       `json:"include_original"`
	KeepEmpty       bool       `json:"keep_empty"`
	Dedupe          DedupeMode `json:"dedupe,omitempty"`
	StripWhitespace bool       `json:"strip_whitespace"`
}

// ExplodeListRowsOpts implements explode_list_rows(source, [delimiter], target).
type ExplodeListRowsOpts struct {
	Source          string     `json:"source"`
	Delimiters      []string   `json:"delimiters,omitempty"` // defaults to {",", ";"} when empty
	Target          string     `json:"target"`
	KeepEmpty       bool       `json:"keep_empty"`
	Dedupe          DedupeMode `json:"dedupe,omitempty"`
	StripWhitespace bool       `json:"strip_whitespace"`
}

// FilterRowsOpts implements filter_rows(include_regex?, exclude_regex?, columns?).
type FilterRowsOpts struct {
	IncludeRegex string   `json:"include_regex,omitempty"`
	ExcludeRegex string   `json:"exclude_regex,omitempty"`
	Columns      []string `json:"columns,omitempty"` // empty means all non-helper columns
}

// RegexReplaceOpts implements regex_replace(pattern, columns[], replacement?, outputs?, skip_on_no_match?).
type RegexReplaceOpts struct {
	Pattern       string            `json:"pattern"`
	Columns       []string          `json:"columns"`
	Replacement   string            `json:"replacement,omitempty"` // Go regexp replacement template, e.g. "$1"
	Outputs       map[string]string `json:"outputs,omitempty"`     // output column -> named capture group
	SkipOnNoMatch bool              `json:"skip_on_no_match"`
}

// ConditionalTransformOpts implements conditional_transform(include/exclude_regex, columns, actions[]).
type ConditionalTransformOpts struct {
	IncludeRegex string   `json:"include_regex,omitempty"`
	ExcludeRegex string   `json:"exclude_regex,omitempty"`
	Columns      []string `json:"columns,omitempty"`
	Actions      []RowOp  `json:"actions"`
}

// ConcatColumnsOpts implements concat_columns(sources[], target, separator, skip_nulls, null_replacement).
type ConcatColumnsOpts struct {
	Sources         []string `json:"sources"`
	Target          string   `json:"target"`
	Separator       string   `json:"separator"`
	SkipNulls       bool     `json:"skip_nulls"`
	NullReplacement string   `json:"null_replacement,omitempty"`
}

// RowOp is one row-level transformation step with its fixed option record.
type RowOp struct {
	Kind        RowOpKind                 `json:"kind"`
	Explode     *ExplodeColumnsOpts       `json:"explode,omitempty"`
	ExplodeList *ExplodeListRowsOpts      `json:"explode_list,omitempty"`
	Filter      *FilterRowsOpts           `json:"filter,omitempty"`
	Regex       *RegexReplaceOpts         `json:"regex,omitempty"`
	Conditional *ConditionalTransformOpts `json:"conditional,omitempty"`
	Concat      *ConcatColumnsOpts        `json:"concat,omitempty"`
}

// ColumnOpKind is the exhaustive operator variant for column-level
// transforms, applied during mapping rather than the row stage. Semantics
// mirror the row versions but never duplicate rows.
type ColumnOpKind string

const (
	ColOpRegexReplace      ColumnOpKind = "regex_replace"
	ColOpMergeColumns      ColumnOpKind = "merge_columns"
	ColOpExplodeListColumn ColumnOpKind = "explode_list_column"
)

// MergeColumnsOpts merges multiple source columns into one target, within a
// single row (no row duplication, unlike concat_columns at the row stage
// which this mirrors in spirit).
type MergeColumnsOpts struct {
	Sources         []string `json:"sources"`
	Target          string   `json:"target"`
	Separator       string   `json:"separator"`
	SkipNulls       bool     `json:"skip_nulls"`
	NullReplacement string   `json:"null_replacement,omitempty"`
}

// ExplodeListColumnOpts takes the first populated element of a delimited
// list column instead of producing multiple rows.
type ExplodeListColumnOpts struct {
	Source     string   `json:"source"`
	Delimiters []string `json:"delimiters,omitempty"`
	Target     string   `json:"target"`
}

// ColumnOp is one column-level transformation applied per target column
// during mapping.
type ColumnOp struct {
	Kind   ColumnOpKind           `json:"kind"`
	Target string                 `json:"target"`
	Regex  *RegexReplaceOpts      `json:"regex,omitempty"`
	Merge  *MergeColumnsOpts      `json:"merge,omitempty"`
	List   *ExplodeListColumnOpts `json:"list,omitempty"`
}
