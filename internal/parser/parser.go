// Package parser decodes CSV/Excel/JSON/XML input into a lazy sequence of
// model.Row, each carrying its 1-indexed source_row_number.
package parser

import (
	"fmt"
	"io"

	"github.com/rowforge/ingest/internal/model"
)

// RowReader is a pull-based row sequence, mirroring the pgx.Rows idiom used
// throughout this codebase's database layer: call Next until it returns
// false, then check Err for a decode failure distinct from exhaustion.
type RowReader interface {
	Next() bool
	Row() model.Row
	Err() error
}

// Parse decodes r according to kind and returns the column headers plus a
// lazy RowReader. XML has no header row, so its headers are the column
// names of the first row element, which is decoded up front; names that
// first appear in later rows are not in the returned headers.
func Parse(r io.Reader, kind model.FileKind, size int64) (headers []string, rows RowReader, err error) {
	switch kind {
	case model.KindCSV:
		return newCSVReader(r, size)
	case model.KindXLSX, model.KindXLS:
		return newExcelReader(r)
	case model.KindJSON:
		return newJSONReader(r)
	case model.KindXML:
		return newXMLReader(r)
	default:
		return nil, nil, fmt.Errorf("parser: unsupported file kind %q", kind)
	}
}
