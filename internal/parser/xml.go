package parser

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/model"
)

// xmlReader decodes XML where the repeated child element tag becomes the
// row unit. The root element's first repeated child name determines
// which elements are treated as rows; each row's own child elements and
// attributes become columns.
type xmlReader struct {
	decoder      *xml.Decoder
	rowTag       string
	headers      []string
	headersSeen  map[string]bool
	row          model.Row
	rowNum       int
	err          error
	done         bool
	pendingFirst bool
}

func newXMLReader(r io.Reader) ([]string, RowReader, error) {
	dec := xml.NewDecoder(r)

	// Skip to the root element's opening tag.
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, apperr.Wrap(model.ErrParseError, "could not read XML root", err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			break
		}
	}

	xr := &xmlReader{decoder: dec, headersSeen: make(map[string]bool)}

	// Peek the first child element to establish the row tag name.
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return []string{}, xr, nil
			}
			return nil, nil, apperr.Wrap(model.ErrParseError, "could not read XML body", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			xr.rowTag = start.Name.Local
			row, err := xr.decodeRow(start)
			if err != nil {
				return nil, nil, err
			}
			xr.rowNum = 1
			row.SourceRowNumber = 1
			xr.row = row
			xr.pendingFirst = true
			xr.recordHeaders(row)
			return xr.headers, xr, nil
		}
		if _, ok := tok.(xml.EndElement); ok {
			return []string{}, xr, nil
		}
	}
}

func (x *xmlReader) recordHeaders(row model.Row) {
	for k := range row.Values {
		if !x.headersSeen[k] {
			x.headersSeen[k] = true
			x.headers = append(x.headers, k)
		}
	}
}

func (x *xmlReader) Next() bool {
	if x.done || x.err != nil {
		return false
	}
	if x.pendingFirst {
		x.pendingFirst = false
		return true
	}

	for {
		tok, err := x.decoder.Token()
		if err != nil {
			if err == io.EOF {
				x.done = true
				return false
			}
			x.err = apperr.Wrap(model.ErrParseError, "could not read XML row", err)
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != x.rowTag {
				continue
			}
			row, err := x.decodeRow(t)
			if err != nil {
				x.err = err
				return false
			}
			x.rowNum++
			row.SourceRowNumber = x.rowNum
			x.row = row
			x.recordHeaders(row)
			return true
		case xml.EndElement:
			continue
		}
	}
}

func (x *xmlReader) Row() model.Row { return x.row }
func (x *xmlReader) Err() error     { return x.err }

// decodeRow decodes one row element's attributes and leaf child elements
// into column values, keyed by local (unprefixed) name.
func (x *xmlReader) decodeRow(start xml.StartElement) (model.Row, error) {
	// Headers are recorded as names appear, so their order follows the document.
	note := func(name string) {
		if !x.headersSeen[name] {
			x.headersSeen[name] = true
			x.headers = append(x.headers, name)
		}
	}

	values := make(map[string]string)
	for _, attr := range start.Attr {
		values[attr.Name.Local] = attr.Value
		note(attr.Name.Local)
	}

	depth := 0
	var currentField string
	var text strings.Builder

	for {
		tok, err := x.decoder.Token()
		if err != nil {
			return model.Row{}, apperr.Wrap(model.ErrParseError, "could not read XML row body", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				currentField = t.Name.Local
				text.Reset()
			}
			depth++
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				// The row element's own closing tag.
				return model.Row{Values: values}, nil
			}
			depth--
			if depth == 0 {
				values[currentField] = strings.TrimSpace(text.String())
				note(currentField)
			}
		}
	}
}
