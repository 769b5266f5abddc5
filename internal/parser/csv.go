package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/model"
)

// csvReader decodes CSV: UTF-8 required, errors on decode failure.
type csvReader struct {
	reader  *csv.Reader
	headers []string
	row     model.Row
	rowNum  int
	err     error
	done    bool
}

func newCSVReader(r io.Reader, size int64) ([]string, RowReader, error) {
	wrapped := wrapForStreaming(r, size)
	cr := csv.NewReader(wrapped)
	cr.FieldsPerRecord = -1 // tolerate ragged rows; missing fields become ""
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("parser: empty file")
		}
		return nil, nil, apperr.Wrap(model.ErrParseError, "could not read CSV header", err)
	}
	for i, h := range header {
		header[i] = cleanCell(h)
	}

	return header, &csvReader{reader: cr, headers: header}, nil
}

func (c *csvReader) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	record, err := c.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.done = true
			return false
		}
		c.err = apperr.Wrap(model.ErrParseError, "malformed CSV row", err)
		return false
	}

	c.rowNum++
	values := make(map[string]string, len(c.headers))
	for i, h := range c.headers {
		if i < len(record) {
			values[h] = record[i]
		} else {
			values[h] = ""
		}
	}
	c.row = model.Row{Values: values, SourceRowNumber: c.rowNum}
	return true
}

func (c *csvReader) Row() model.Row { return c.row }
func (c *csvReader) Err() error     { return c.err }

// cleanCell trims common CSV artifacts from a header cell: surrounding
// whitespace and quotes, and an Excel formula prefix.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	return strings.Trim(s, `"'`)
}
