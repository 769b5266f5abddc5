package parser

import (
	"io"

	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/model"
	"github.com/xuri/excelize/v2"
)

// excelReader decodes spreadsheets via excelize's streaming row iterator so
// the whole sheet is never materialized in memory. Only the first sheet is
// read, with its first row as the header; later sheets are ignored.
// excelize opens only the OOXML (xlsx) format, so a legacy binary xls file
// fails to open and is reported as a parse error.
type excelReader struct {
	file    *excelize.File
	rowIter *excelize.Rows
	headers []string
	row     model.Row
	rowNum  int
	err     error
	done    bool
}

func newExcelReader(r io.Reader) ([]string, RowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, apperr.Wrap(model.ErrParseError, "could not open spreadsheet", err)
	}

	sheet := f.GetSheetName(0)
	if sheet == "" {
		f.Close()
		return nil, nil, apperr.New(model.ErrParseError, "spreadsheet has no sheets")
	}

	iter, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, nil, apperr.Wrap(model.ErrParseError, "could not iterate sheet rows", err)
	}

	if !iter.Next() {
		f.Close()
		return nil, nil, apperr.New(model.ErrParseError, "spreadsheet has no header row")
	}
	header, err := iter.Columns()
	if err != nil {
		f.Close()
		return nil, nil, apperr.Wrap(model.ErrParseError, "could not read header row", err)
	}
	for i := range header {
		header[i] = cleanCell(header[i])
	}

	return header, &excelReader{file: f, rowIter: iter, headers: header}, nil
}

func (e *excelReader) Next() bool {
	if e.done || e.err != nil {
		return false
	}
	if !e.rowIter.Next() {
		e.done = true
		e.file.Close()
		return false
	}

	cells, err := e.rowIter.Columns()
	if err != nil {
		e.err = apperr.Wrap(model.ErrParseError, "could not read spreadsheet row", err)
		e.file.Close()
		return false
	}

	e.rowNum++
	values := make(map[string]string, len(e.headers))
	for i, h := range e.headers {
		if i < len(cells) {
			values[h] = cells[i]
		} else {
			values[h] = ""
		}
	}
	e.row = model.Row{Values: values, SourceRowNumber: e.rowNum}
	return true
}

func (e *excelReader) Row() model.Row { return e.row }
func (e *excelReader) Err() error     { return e.err }
