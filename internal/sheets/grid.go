package sheets

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Grid is an in-memory Worksheet decoded from an uploaded CSV or JSON file.
type Grid struct {
	rows    [][]any
	text    string
	records []Record
}

// Open decodes data according to the file name extension or content type.
func Open(name, contentType string, data []byte) (*Grid, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".json" || strings.Contains(contentType, "json"):
		return FromJSON(data)
	case ext == ".csv" || ext == ".txt" || strings.HasPrefix(contentType, "text/"):
		return FromCSV(data)
	default:
		return nil, fmt.Errorf("%w: unsupported sheet format %q", ErrInvalidInput, name)
	}
}

// FromCSV builds a grid whose first row is the header.
func FromCSV(data []byte) (*Grid, error) {
	text := string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	rows, err := parseDelimited(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	g := &Grid{text: text, rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		cells := make([]any, len(r))
		for i, c := range r {
			cells[i] = c
		}
		g.rows = append(g.rows, cells)
	}
	if len(rows) > 0 {
		header := rows[0]
		for _, r := range rows[1:] {
			rec := make(Record, 0, len(header))
			for i, k := range header {
				var v any
				if i < len(r) {
					v = r[i]
				}
				rec = append(rec, Field{Key: k, Value: v})
			}
			g.records = append(g.records, rec)
		}
	}
	return g, nil
}

// FromJSON accepts either an array of objects or an array of arrays.
func FromJSON(data []byte) (*Grid, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidInput)
	}
	g := &Grid{}
	for dec.More() {
		v, err := decodeOrdered(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		switch x := v.(type) {
		case Record:
			g.records = append(g.records, x)
		case []any:
			g.rows = append(g.rows, x)
		default:
			return nil, fmt.Errorf("%w: array items must be objects or arrays", ErrInvalidInput)
		}
	}
	if len(g.records) > 0 && len(g.rows) > 0 {
		return nil, fmt.Errorf("%w: cannot mix objects and arrays", ErrInvalidInput)
	}
	if len(g.records) > 0 {
		header := distinctKeys(g.records[0])
		hrow := make([]any, len(header))
		for i, k := range header {
			hrow[i] = k
		}
		g.rows = append(g.rows, hrow)
		for _, rec := range g.records {
			row := make([]any, len(header))
			for i, k := range header {
				row[i], _ = rec.Get(k)
			}
			g.rows = append(g.rows, row)
		}
	}
	text, err := renderCSV(g.rows)
	if err != nil {
		return nil, err
	}
	g.text = text
	return g, nil
}

func (g *Grid) Rows() ([][]any, error) {
	if g == nil {
		return nil, errors.New("nil grid")
	}
	return g.rows, nil
}

func (g *Grid) Text() (string, error) {
	if g == nil {
		return "", errors.New("nil grid")
	}
	return g.text, nil
}

func (g *Grid) Records() ([]Record, error) {
	if g == nil {
		return nil, errors.New("nil grid")
	}
	if g.records == nil {
		return []Record{}, nil
	}
	return g.records, nil
}

func renderCSV(rows [][]any) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, r := range rows {
		if err := w.Write(stringifyRow(r)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// decodeOrdered decodes the next JSON value, keeping object key order as Record.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		rec := Record{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			rec = append(rec, Field{Key: k, Value: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return rec, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
}
