package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rowforge/ingest/internal/apperr"
	"github.com/rowforge/ingest/internal/model"
)

// jsonReader decodes a top-level JSON array of objects, or an object whose
// values are parallel arrays (object-of-arrays). Keys become
// headers; their order follows Go map iteration, not the key order in the
// source document.
type jsonReader struct {
	decoder *json.Decoder // used for the array-of-objects streaming path
	headers []string
	row     model.Row
	rowNum  int
	err     error
	done    bool
	pending bool // first row of the array path was already decoded to discover headers

	// object-of-arrays path buffers rows since they must be zipped across
	// columns; nil when streaming the array-of-objects path instead.
	buffered []map[string]any
	bufIdx   int
}

func newJSONReader(r io.Reader) ([]string, RowReader, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, apperr.Wrap(model.ErrParseError, "could not read JSON", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			return newJSONArrayReader(dec)
		case '{':
			return newJSONObjectOfArraysReader(dec)
		}
	}
	return nil, nil, apperr.New(model.ErrParseError, "JSON must be a top-level array of objects or object of arrays")
}

func newJSONArrayReader(dec *json.Decoder) ([]string, RowReader, error) {
	jr := &jsonReader{decoder: dec}
	if !jr.advanceArray() {
		if jr.err != nil {
			return nil, nil, jr.err
		}
		return []string{}, jr, nil
	}
	jr.headers = headerOrder(jr.row.Values)
	// Re-wind: the first row was consumed to discover headers; keep it as
	// the pending row so Next() returns it on the first call.
	jr.pending = true
	return jr.headers, jr, nil
}

func (j *jsonReader) advanceArray() bool {
	if !j.decoder.More() {
		return false
	}
	var obj map[string]any
	if err := j.decoder.Decode(&obj); err != nil {
		j.err = apperr.Wrap(model.ErrParseError, "malformed JSON object in array", err)
		return false
	}
	j.rowNum++
	j.row = model.Row{Values: toStringMap(obj), SourceRowNumber: j.rowNum}
	return true
}

func (j *jsonReader) Next() bool {
	if j.done || j.err != nil {
		return false
	}

	if j.buffered != nil {
		if j.bufIdx >= len(j.buffered) {
			j.done = true
			return false
		}
		j.rowNum++
		j.row = model.Row{Values: toStringMap(j.buffered[j.bufIdx]), SourceRowNumber: j.rowNum}
		j.bufIdx++
		return true
	}

	if j.pending {
		j.pending = false
		return true
	}
	return j.advanceArray()
}

func (j *jsonReader) Row() model.Row { return j.row }
func (j *jsonReader) Err() error     { return j.err }

func newJSONObjectOfArraysReader(dec *json.Decoder) ([]string, RowReader, error) {
	var obj map[string][]any
	// The opening '{' token was already consumed; decode the remainder as a
	// generic map keyed by column name to parallel value arrays.
	if err := decodeRemainingObject(dec, &obj); err != nil {
		return nil, nil, apperr.Wrap(model.ErrParseError, "malformed object-of-arrays JSON", err)
	}

	headers := make([]string, 0, len(obj))
	maxLen := 0
	for k, v := range obj {
		headers = append(headers, k)
		if len(v) > maxLen {
			maxLen = len(v)
		}
	}

	rows := make([]map[string]any, maxLen)
	for i := 0; i < maxLen; i++ {
		row := make(map[string]any, len(headers))
		for _, h := range headers {
			col := obj[h]
			if i < len(col) {
				row[h] = col[i]
			} else {
				row[h] = nil
			}
		}
		rows[i] = row
	}

	return headers, &jsonReader{buffered: rows}, nil
}

// decodeRemainingObject decodes key/value pairs until the matching '}' for
// an object whose opening delimiter token has already been consumed.
func decodeRemainingObject(dec *json.Decoder, out *map[string][]any) error {
	result := make(map[string][]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var arr []any
		if err := dec.Decode(&arr); err != nil {
			return err
		}
		result[key] = arr
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return err
	}
	*out = result
	return nil
}

func headerOrder(m map[string]string) []string {
	headers := make([]string, 0, len(m))
	for k := range m {
		headers = append(headers, k)
	}
	return headers
}

func toStringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = stringifyJSONValue(v)
	}
	return out
}

func stringifyJSONValue(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
